// Package broadcast publishes seat-state changes over Redis pub/sub so
// seat-map frontends can live-update without polling.  Delivery is
// fire-and-forget: a missed message only delays the UI until the next
// seat-map fetch, so publish failures are logged and dropped and a nil
// Redis client degrades to a no-op, mirroring how caching and rate
// limiting degrade when Redis is unavailable.
package broadcast

import (
    "context"
    "encoding/json"
    "log"
    "strconv"
    "time"

    "github.com/redis/go-redis/v9"
)

// Publisher fans seat events out to the per-showtime channel
// "seats:<showtime_id>".
type Publisher struct {
    rdb *redis.Client
}

// NewPublisher wraps a Redis client; nil disables publishing.
func NewPublisher(rdb *redis.Client) *Publisher { return &Publisher{rdb: rdb} }

// Event is the wire format of one seat-state change.
type Event struct {
    Type       string   `json:"type"` // seats.locked, seats.released or seats.sold
    ShowtimeID uint64   `json:"showtime_id"`
    SeatIDs    []uint64 `json:"seat_ids"`
    At         string   `json:"at"` // RFC3339 UTC
}

// SeatsLocked announces that the seats were locked by a session.
func (p *Publisher) SeatsLocked(ctx context.Context, showtimeID uint64, seatIDs []uint64) {
    p.publish(ctx, "seats.locked", showtimeID, seatIDs)
}

// SeatsReleased announces that the seats returned to the free pool.
func (p *Publisher) SeatsReleased(ctx context.Context, showtimeID uint64, seatIDs []uint64) {
    p.publish(ctx, "seats.released", showtimeID, seatIDs)
}

// SeatsSold announces that the seats were sold to a completed booking.
func (p *Publisher) SeatsSold(ctx context.Context, showtimeID uint64, seatIDs []uint64) {
    p.publish(ctx, "seats.sold", showtimeID, seatIDs)
}

func (p *Publisher) publish(ctx context.Context, typ string, showtimeID uint64, seatIDs []uint64) {
    if p.rdb == nil || len(seatIDs) == 0 {
        return
    }
    payload, err := json.Marshal(Event{
        Type:       typ,
        ShowtimeID: showtimeID,
        SeatIDs:    seatIDs,
        At:         time.Now().UTC().Format(time.RFC3339),
    })
    if err != nil {
        log.Printf("broadcast: marshal %s failed: %v", typ, err)
        return
    }
    channel := "seats:" + strconv.FormatUint(showtimeID, 10)
    if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
        log.Printf("broadcast: publish %s to %s failed: %v", typ, channel, err)
    }
}
