package redis

import "fmt"

const ns = "seatline:v1"

func KeyAvailability(date string) string {
	return fmt.Sprintf("%s:availability:%s", ns, date)
}

// RateLimitPrefix is handed to the sliding-window limiter, which appends
// the caller-scoped suffix itself.
func RateLimitPrefix() string {
	return ns + ":rl"
}

func ChannelCallEvents() string {
	return ns + ":calls:events"
}

func ChannelReservationsChanged() string {
	return ns + ":reservations:changed"
}
