// Package qr renders the code a student scans to reach a session.
package qr

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/skip2/go-qrcode"

	"qrattend/internal/model"
)

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 300

// Payload is the JSON encoded into the code. Clients only need the id; the
// rest lets a scanner show what it is about to check in to.
type Payload struct {
	ID           string    `json:"id"`
	Period       string    `json:"period"`
	Topic        string    `json:"topic"`
	Semester     int       `json:"semester"`
	Section      string    `json:"section"`
	TimerMinutes int       `json:"timer_minutes"`
	CreatedAt    time.Time `json:"created_at"`
}

// PayloadFor extracts the scannable fields of s.
func PayloadFor(s model.Session) Payload {
	return Payload{
		ID:           s.ID,
		Period:       s.Period,
		Topic:        s.Topic,
		Semester:     s.Semester,
		Section:      s.Section,
		TimerMinutes: s.TimerMinutes,
		CreatedAt:    s.CreatedAt,
	}
}

// PNG renders the session payload as a PNG of size x size pixels.
func PNG(s model.Session, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	body, err := json.Marshal(PayloadFor(s))
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(string(body), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
