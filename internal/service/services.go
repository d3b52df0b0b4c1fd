package service

import (
	"github.com/seatline/seatline/internal/dates"
	postgresrepo "github.com/seatline/seatline/internal/repository/postgres"
	redisrepo "github.com/seatline/seatline/internal/repository/redis"
	"github.com/seatline/seatline/internal/service/availability"
	"github.com/seatline/seatline/internal/service/booking"
)

type Services struct {
	Availability *availability.Service
	Booking      *booking.Service
}

type Config struct {
	Availability availability.Config
	Booking      booking.Config
}

func NewServices(
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	pubsub booking.Publisher,
	limiter *redisrepo.SlidingWindowLimiter,
	resolver dates.Resolver,
	cfg Config,
) *Services {
	reservations := store.Reservations()
	avail := availability.New(reservations, cache, cfg.Availability)

	// A nil *SlidingWindowLimiter must stay a nil interface so the booking
	// service's limiter guard keeps working.
	var rl booking.RateLimiter
	if limiter != nil {
		rl = limiter
	}

	return &Services{
		Availability: avail,
		Booking:      booking.New(reservations, avail, resolver, cache, pubsub, rl, cfg.Booking),
	}
}
