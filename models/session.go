package models

import (
	"fmt"
	"time"
)

// DateLayout is the only accepted date representation (YYYY-MM-DD)
const DateLayout = "2006-01-02"

// SessionKey identifies the single Session a location may hold on a date
type SessionKey struct {
	Date       string `json:"date"`
	LocationID string `json:"location_id"`
}

// String encodes the key for key-value storage. The date is fixed width and
// never contains the separator, so location ids may contain "|" freely.
func (k SessionKey) String() string {
	return k.Date + "|" + k.LocationID
}

// ParseSessionKey reverses SessionKey.String
func ParseSessionKey(raw string) (SessionKey, error) {
	if len(raw) < len(DateLayout)+1 || raw[len(DateLayout)] != '|' {
		return SessionKey{}, fmt.Errorf("malformed session key %q", raw)
	}
	return SessionKey{Date: raw[:len(DateLayout)], LocationID: raw[len(DateLayout)+1:]}, nil
}

// Session represents a scheduled examination event (perícia) at one location on one date
type Session struct {
	ID           string    `json:"id"`
	Date         string    `json:"date"`
	LocationID   string    `json:"location_id"`
	Observations string    `json:"observations,omitempty"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedBy    string    `json:"updated_by"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Key returns the composite key of the session
func (s *Session) Key() SessionKey {
	return SessionKey{Date: s.Date, LocationID: s.LocationID}
}
