// Package rfid receives card scans from the kiosk reader over a Redis channel
// and filters out stale and repeated deliveries.
package rfid

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
)

var ErrEmptyCardID = errors.New("scan has no card id")

// Scan is the latest card presented to the reader.
type Scan struct {
	CardID    string
	Timestamp time.Time
	Raw       string
}

type scanPayload struct {
	CardID    string          `json:"cardId"`
	UID       string          `json:"uid"`
	ID        string          `json:"id"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// ParseScan decodes a reader payload. Objects may name the card cardId, uid or
// id (first non-empty wins) and carry an epoch-millisecond timestamp; a bare
// string or plain text is taken as the card id. Missing timestamps use now.
func ParseScan(payload []byte, now time.Time) (Scan, error) {
	raw := strings.TrimSpace(string(payload))
	s := Scan{Timestamp: now, Raw: raw}

	trimmed := bytes.TrimSpace(payload)
	switch {
	case len(trimmed) > 0 && trimmed[0] == '{':
		var p scanPayload
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return s, err
		}
		s.CardID = firstNonEmpty(p.CardID, p.UID, p.ID)
		if ts, ok := parseMillis(p.Timestamp); ok {
			s.Timestamp = ts
		}
	case len(trimmed) > 0 && trimmed[0] == '"':
		if err := json.Unmarshal(trimmed, &s.CardID); err != nil {
			return s, err
		}
	default:
		s.CardID = raw
	}

	s.CardID = strings.TrimSpace(s.CardID)
	if s.CardID == "" {
		return s, ErrEmptyCardID
	}
	return s, nil
}

// Encode renders the scan in the reader's wire shape.
func (s Scan) Encode() []byte {
	b, _ := json.Marshal(map[string]any{
		"cardId":    s.CardID,
		"timestamp": s.Timestamp.UnixMilli(),
	})
	return b
}

func parseMillis(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, false
		}
		n = json.Number(s)
	}
	ms, err := strconv.ParseFloat(string(n), 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)), true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

type Verdict string

const (
	Accepted  Verdict = "accepted"
	Stale     Verdict = "stale"
	Duplicate Verdict = "duplicate"
	Invalid   Verdict = "invalid"
)

// Filter drops scans older than MaxAge and repeats of the last accepted
// (card id, timestamp) pair. Safe for concurrent use.
type Filter struct {
	MaxAge time.Duration

	mu       sync.Mutex
	lastCard string
	lastTS   time.Time
}

func NewFilter(maxAge time.Duration) *Filter {
	return &Filter{MaxAge: maxAge}
}

func (f *Filter) Check(s Scan, now time.Time) Verdict {
	if s.CardID == "" {
		return Invalid
	}
	if f.MaxAge > 0 && now.Sub(s.Timestamp) > f.MaxAge {
		return Stale
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if s.CardID == f.lastCard && s.Timestamp.Equal(f.lastTS) {
		return Duplicate
	}
	f.lastCard = s.CardID
	f.lastTS = s.Timestamp
	return Accepted
}
