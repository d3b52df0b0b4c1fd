package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/seatline/seatline/internal/callctrl"
	"github.com/seatline/seatline/internal/domain"
	"github.com/seatline/seatline/internal/phonetic"
	postgresrepo "github.com/seatline/seatline/internal/repository/postgres"
	redisrepo "github.com/seatline/seatline/internal/repository/redis"
	"github.com/seatline/seatline/internal/service"
	"github.com/seatline/seatline/internal/service/booking"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func NewRouter(
	svcs *service.Services,
	calls *callctrl.Controller,
	callLog *postgresrepo.CallRecordRepo,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Availability is also served as a cacheable GET for dashboards.
	r.GET("/availability", handleGetAvailability(svcs))

	// Tool endpoints the voice agent calls mid-conversation.
	tools := r.Group("/tools")
	{
		tools.POST("/check-availability", handleCheckAvailability(svcs))
		tools.POST("/create-booking", handleCreateBooking(svcs, idem))
		tools.POST("/find-booking", handleFindBooking(svcs))
		tools.POST("/cancel-booking", handleCancelBooking(svcs))
	}

	// Webhooks from the telephony and conversational-voice providers.
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/telephony", handleTelephonyEvent(calls))
		webhooks.POST("/agent", handleAgentEvent(calls))
	}

	// Call visibility for operators.
	r.GET("/calls", handleCallCounts(calls))
	r.GET("/calls/:id", handleCallStatus(calls))
	r.GET("/calls/records", handleCallRecords(callLog))

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Availability for a date
// @Param    date        query  string  true   "YYYY-MM-DD"
// @Param    party_size  query  int     false  "party size"
// @Success  200  {object}  AvailabilityResponse
// @Router   /availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		date := strings.TrimSpace(c.Query("date"))
		if date == "" {
			badRequest(c, "missing date")
			return
		}
		partySize := parseIntDefault(c.Query("party_size"), 1)

		slots, err := svcs.Availability.CheckAvailability(c.Request.Context(), date, partySize)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 15s
		writeJSONWithCache(c, http.StatusOK, AvailabilityResponse{Date: date, Slots: slots},
			"public, max-age=15", true)
	}
}

// @Summary  Check availability (agent tool)
// @Param    req  body  CheckAvailabilityRequest  true  "payload"
// @Success  200  {object}  AvailabilityResponse
// @Failure  400  {object}  ErrorResponse
// @Router   /tools/check-availability [post]
func handleCheckAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CheckAvailabilityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		slots, err := svcs.Availability.CheckAvailability(c.Request.Context(), req.Date, req.PartySize)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, AvailabilityResponse{Date: req.Date, Slots: slots})
	}
}

// @Summary  Create booking (agent tool, idempotent)
// @Param    req  body  CreateBookingRequest  true  "payload"
// @Header   201  {string}  Idempotency-Key  "echo"
// @Success  201  {object}  BookingResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse  "slot full / duplicate / idem in progress"
// @Failure  429  {object}  ErrorResponse  "rate limited"
// @Router   /tools/create-booking [post]
func handleCreateBooking(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(idemKey)

			if payload, ok, _ := idem.GetResult(
				c.Request.Context(),
				idemStorageKey,
			); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(
					http.StatusCreated,
					"application/json; charset=utf-8",
					[]byte(payload),
				)
				return
			}

			locked, err := idem.AcquireLock(
				c.Request.Context(),
				idemStorageKey,
				60*time.Second,
			)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(
					c.Request.Context(),
					idemStorageKey,
				); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(
						http.StatusCreated,
						"application/json; charset=utf-8",
						[]byte(payload),
					)
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(
					http.StatusConflict,
					ErrorResponse{Error: "idempotency key in progress"},
				)
				return
			}
		}

		rlKey := "ip:" + c.ClientIP()

		res, err := svcs.Booking.Create(c.Request.Context(), booking.CreateParams{
			CustomerName:        req.CustomerName,
			Date:                req.Date,
			Time:                req.Time,
			PartySize:           req.PartySize,
			SpecialRequirements: req.SpecialRequirements,
			Phone:               req.Phone,
		}, rlKey)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			var rle *booking.RateLimitedError
			if errors.As(err, &rle) {
				c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(rle.RetryAfter)))
				c.JSON(
					http.StatusTooManyRequests,
					ErrorResponse{Error: rle.Error()},
				)
				return
			}
			respondErr(c, err)
			return
		}

		resp := BookingResponse{
			Reservation:        res,
			ConfirmationPhrase: phonetic.Encode(res.ConfirmationCode),
		}

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  Find booking by code or phonetic transcription (agent tool)
// @Param    req  body  BookingLookupRequest  true  "payload"
// @Success  200  {object}  FindBookingResponse
// @Router   /tools/find-booking [post]
func handleFindBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BookingLookupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		res, err := svcs.Booking.Find(c.Request.Context(), req.Code)
		if err != nil {
			respondErr(c, err)
			return
		}
		if res == nil {
			// A miss is a normal tool outcome, not an error.
			c.JSON(http.StatusOK, FindBookingResponse{Found: false})
			return
		}
		c.JSON(http.StatusOK, FindBookingResponse{
			Found:              true,
			Reservation:        res,
			ConfirmationPhrase: phonetic.Encode(res.ConfirmationCode),
		})
	}
}

// @Summary  Cancel booking by code or phonetic transcription (agent tool)
// @Param    req  body  BookingLookupRequest  true  "payload"
// @Success  200  {object}  BookingResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /tools/cancel-booking [post]
func handleCancelBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BookingLookupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		res, err := svcs.Booking.Cancel(c.Request.Context(), req.Code)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, BookingResponse{
			Reservation:        res,
			ConfirmationPhrase: phonetic.Encode(res.ConfirmationCode),
		})
	}
}

// @Summary  Telephony provider webhook
// @Param    req  body  TelephonyEventRequest  true  "payload"
// @Success  200  {object}  CallActionResponse
// @Router   /webhooks/telephony [post]
func handleTelephonyEvent(calls *callctrl.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TelephonyEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		switch req.Type {
		case "call.incoming":
			if !calls.ReserveSlot() {
				// Full house: the provider sends the caller to voicemail.
				c.JSON(http.StatusOK, CallActionResponse{
					Action: "reject",
					Reason: "at_capacity",
				})
				return
			}
			c.JSON(http.StatusOK, CallActionResponse{Action: "accept"})
		case "call.failed":
			// The leg never connected; give the reserved slot back.
			calls.ReleaseSlot()
			c.Status(http.StatusNoContent)
		case "call.status":
			calls.UpdateStatus(req.CallID, parseCallStatus(req.Status))
			c.Status(http.StatusNoContent)
		case "call.completed":
			calls.EndCall(req.CallID, endReason(req.Reason, "completed"))
			c.Status(http.StatusNoContent)
		default:
			badRequest(c, "unknown event type "+strconv.Quote(req.Type))
		}
	}
}

// @Summary  Conversational-voice provider webhook
// @Param    req  body  AgentEventRequest  true  "payload"
// @Success  204
// @Router   /webhooks/agent [post]
func handleAgentEvent(calls *callctrl.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AgentEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		switch req.Type {
		case "conversation.started":
			calls.RegisterCall(req.CallID, req.ProviderCallID)
			c.Status(http.StatusNoContent)
		case "conversation.status":
			calls.UpdateStatus(req.CallID, parseCallStatus(req.Status))
			c.Status(http.StatusNoContent)
		case "conversation.ended":
			calls.EndCall(req.CallID, endReason(req.Reason, "agent_ended"))
			c.Status(http.StatusNoContent)
		default:
			badRequest(c, "unknown event type "+strconv.Quote(req.Type))
		}
	}
}

// @Summary  Call admission counters
// @Success  200  {object}  CallCountsResponse
// @Router   /calls [get]
func handleCallCounts(calls *callctrl.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		active, pending := calls.Counts()
		c.JSON(http.StatusOK, CallCountsResponse{
			Active:        active,
			Pending:       pending,
			MaxConcurrent: calls.MaxConcurrent(),
			CanAccept:     calls.CanAccept(),
		})
	}
}

// @Summary  Status of one call
// @Param    id  path  string  true  "call ID"
// @Success  200  {object}  CallStatusResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /calls/{id} [get]
func handleCallStatus(calls *callctrl.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		call, ok := calls.Call(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown call"})
			return
		}
		c.JSON(http.StatusOK, CallStatusResponse{
			CallID:         call.CallID,
			ProviderCallID: call.ProviderCallID,
			Status:         string(call.Status),
		})
	}
}

// @Summary  Recent call records
// @Param    limit  query  int  false  "page size"
// @Success  200  {array}  domain.CallRecord
// @Router   /calls/records [get]
func handleCallRecords(callLog *postgresrepo.CallRecordRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := parseIntDefault(c.Query("limit"), 50)

		records, err := callLog.Recent(c.Request.Context(), limit)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, records)
	}
}

// --- Helpers ---

func parseCallStatus(s string) domain.CallStatus {
	switch domain.CallStatus(s) {
	case domain.CallConnecting, domain.CallActive, domain.CallEnding, domain.CallEnded:
		return domain.CallStatus(s)
	default:
		return domain.CallActive
	}
}

func endReason(reason, fallback string) string {
	if reason != "" {
		return reason
	}
	return fallback
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// retryAfterSeconds rounds the limiter's suggested wait up to whole
// seconds, with a one-second floor.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var (
		verr *booking.ValidationError
		cerr *booking.ConflictError
		nerr *booking.NotFoundError
		ferr *booking.FatalError
	)

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: verr.Error()})
	case errors.As(err, &cerr):
		c.JSON(http.StatusConflict, ErrorResponse{Error: cerr.Error()})
	case errors.As(err, &nerr):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: nerr.Error()})
	case errors.As(err, &ferr):
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: ferr.Error()})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
