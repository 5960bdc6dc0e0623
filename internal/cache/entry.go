// Package cache provides TTL caches for fetched contract data: an
// in-process LRU and a JSON file per key.
//
// Every backend stores the same envelope, {"timestamp": <unix seconds>,
// "data": <payload>}, and treats entries older than the TTL as misses.
package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// Entry is the stored envelope.
type Entry struct {
	Timestamp float64         `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEntry stamps data with ts.
func NewEntry(ts time.Time, data []byte) Entry {
	return Entry{
		Timestamp: float64(ts.UnixNano()) / float64(time.Second),
		Data:      data,
	}
}

// Time returns the entry timestamp.
func (e Entry) Time() time.Time {
	sec := int64(e.Timestamp)
	nsec := int64((e.Timestamp - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// Fresh reports whether the entry is younger than ttl at now.
// A non-positive ttl never expires.
func (e Entry) Fresh(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return true
	}
	return now.Sub(e.Time()) < ttl
}

// Encode marshals the envelope.
func (e Entry) Encode() ([]byte, error) {
	b, err := sonic.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("cache: encode entry: %w", err)
	}
	return b, nil
}

// DecodeEntry unmarshals an envelope.
func DecodeEntry(b []byte) (Entry, error) {
	var e Entry
	if err := sonic.Unmarshal(b, &e); err != nil {
		return Entry{}, fmt.Errorf("cache: decode entry: %w", err)
	}
	return e, nil
}
