package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/seatline/seatline/internal/callctrl"
)

// PubSub publishes call lifecycle events and reservation-change
// notifications. It satisfies callctrl.Notifier so the controller can fan
// call events out to other instances.
type PubSub struct {
	rdb *redis.Client
}

func NewPubSub(rdb *redis.Client) *PubSub {
	return &PubSub{rdb: rdb}
}

type callEventMsg struct {
	Type           string `json:"type"`
	CallID         string `json:"call_id"`
	ProviderCallID string `json:"provider_call_id"`
	Reason         string `json:"reason,omitempty"`
	TsUnix         int64  `json:"ts_unix"`
}

func (p *PubSub) CallStarted(ctx context.Context, ev callctrl.Event) {
	p.publishCallEvent(ctx, "call_started", ev)
}

func (p *PubSub) CallEnded(ctx context.Context, ev callctrl.Event) {
	p.publishCallEvent(ctx, "call_ended", ev)
}

func (p *PubSub) publishCallEvent(ctx context.Context, typ string, ev callctrl.Event) {
	msg := callEventMsg{
		Type:           typ,
		CallID:         ev.CallID,
		ProviderCallID: ev.ProviderCallID,
		Reason:         ev.Reason,
		TsUnix:         ev.At.Unix(),
	}

	b, _ := json.Marshal(msg)

	_ = p.rdb.Publish(ctx, ChannelCallEvents(), b).Err()
}

type reservationsChangedMsg struct {
	Type   string `json:"type"`
	Date   string `json:"date"`
	TsUnix int64  `json:"ts_unix"`
}

func (p *PubSub) PublishReservationsChanged(ctx context.Context, date string) error {
	msg := reservationsChangedMsg{
		Type:   "reservations_changed",
		Date:   date,
		TsUnix: time.Now().Unix(),
	}

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, ChannelReservationsChanged(), b).Err()
}

// SubscribeReservationsChanged blocks until ctx is done, invoking handler
// for every change notification. Used to keep the availability cache
// coherent across instances.
func (p *PubSub) SubscribeReservationsChanged(
	ctx context.Context,
	handler func(ctx context.Context, date string),
) error {
	sub := p.rdb.Subscribe(ctx, ChannelReservationsChanged())
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg reservationsChangedMsg
			if err := json.Unmarshal([]byte(m.Payload), &msg); err == nil &&
				msg.Date != "" {
				handler(ctx, msg.Date)
			}
		}
	}
}
