package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jengzang/beacons-backend-go/internal/models"
)

// ErrInvalidMessage marks a message that can never be ingested
var ErrInvalidMessage = errors.New("invalid ping message")

type pingMessage struct {
	Event   string          `json:"event"`
	ID      string          `json:"id"`
	Date    json.RawMessage `json:"date"`
	Beacons json.RawMessage `json:"beacons"`
	Regions json.RawMessage `json:"regions"`
}

// DecodePing parses a ping message. date may be epoch milliseconds (number or
// string) or an RFC 3339 timestamp; missing arrays are treated as empty.
func DecodePing(value []byte) (models.Ping, error) {
	var msg pingMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return models.Ping{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	p := models.Ping{
		Event: strings.TrimSpace(msg.Event),
		ID:    strings.TrimSpace(msg.ID),
	}
	if p.Event == "" {
		return models.Ping{}, fmt.Errorf("%w: missing event", ErrInvalidMessage)
	}

	date, err := decodeDate(msg.Date)
	if err != nil {
		return models.Ping{}, fmt.Errorf("%w: date: %v", ErrInvalidMessage, err)
	}
	p.Date = date

	if err := decodeArray(msg.Regions, &p.Regions); err != nil {
		return models.Ping{}, fmt.Errorf("%w: regions: %v", ErrInvalidMessage, err)
	}
	if err := decodeArray(msg.Beacons, &p.Beacons); err != nil {
		return models.Ping{}, fmt.Errorf("%w: beacons: %v", ErrInvalidMessage, err)
	}

	return p, nil
}

func decodeDate(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, errors.New("missing")
	}

	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, err
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func decodeArray[T any](raw json.RawMessage, dst *[]T) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*dst = []T{}
		return nil
	}
	return json.Unmarshal(raw, dst)
}
