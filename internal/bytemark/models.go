package bytemark

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Product UUIDs whose appearance grants a free transit ticket.
var freeTicketProducts = map[string]bool{
	"2417edb7-856c-43ee-b3df-c508b8be259b": true,
	"654b9f9d-5972-445b-8c6b-5c29a35c7751": true,
}

// PassEntry is one cached upstream pass. Payload holds the raw upstream
// object as compact JSON; PayloadHash is its lowercase-hex MD5.
type PassEntry struct {
	PassUUID         string `bson:"pass_uuid" json:"pass_uuid"`
	Timestamp        int64  `bson:"timestamp" json:"timestamp"`
	Status           string `bson:"status" json:"status"`
	FreeTicketStatus int    `bson:"free_ticket_status" json:"free_ticket_status"`
	Payload          string `bson:"payload" json:"payload"`
	PayloadHash      string `bson:"payload_hash" json:"payload_hash"`
}

// TicketsCache is the per-user cache document. Timestamp is unix seconds of
// the last refresh.
type TicketsCache struct {
	UserID    int64       `bson:"user_id" json:"user_id"`
	Timestamp int64       `bson:"timestamp" json:"timestamp"`
	Passes    []PassEntry `bson:"passes" json:"passes"`
	Passes4   []PassEntry `bson:"passes4" json:"passes4"`
}

// Age returns how long ago the cache was refreshed.
func (c *TicketsCache) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(c.Timestamp, 0))
}

// RefreshLog records one refresh event.
type RefreshLog struct {
	UserID    int64 `bson:"user_id" json:"user_id"`
	Timestamp int64 `bson:"timestamp" json:"timestamp"`
}

// TicketLog mirrors one observed PassEntry, append-only.
type TicketLog struct {
	UserID      int64  `bson:"user_id" json:"user_id"`
	PassUUID    string `bson:"pass_uuid" json:"pass_uuid"`
	Status      string `bson:"status" json:"status"`
	PayloadHash string `bson:"payload_hash" json:"payload_hash"`
	Timestamp   int64  `bson:"timestamp" json:"timestamp"`
}

// UpstreamPass is the subset of the upstream pass object the cache keys on,
// plus the raw payload for hashing.
type UpstreamPass struct {
	PassUUID    string `json:"uuid"`
	Status      string `json:"status"`
	TimeCreated string `json:"time_created"`
	ProductUUID string `json:"product_uuid"`

	Raw json.RawMessage `json:"-"`
}

// IsFreeTicketProduct reports whether the pass grants a free ticket.
func (p *UpstreamPass) IsFreeTicketProduct() bool {
	return freeTicketProducts[p.ProductUUID]
}

// HashPayload returns the lowercase-hex MD5 of the JSON payload.
func HashPayload(payload []byte) string {
	sum := md5.Sum(payload)
	return hex.EncodeToString(sum[:])
}
