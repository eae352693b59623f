package bus

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jengzang/beacons-backend-go/internal/models"
)

// Topic names a coordination channel shared by the panels
type Topic string

// Topic names are shared with the portlet implementation and must not change
const (
	SelectedEvent  Topic = "com.liferay.beacons.selectedEvent"
	SelectedRegion Topic = "com.liferay.beacons.selectedRegion"
	SelectedBucket Topic = "com.liferay.beacons.selectedBucket"
)

// Event is one message delivered on the bus
type Event struct {
	Session string `json:"session"`
	Topic   Topic  `json:"topic"`
	Payload string `json:"payload"`
}

// Handler receives events for a subscribed topic
type Handler func(Event)

// Bus delivers small string payloads between the panels of one user session.
// Within a session, events are delivered in publish order.
type Bus interface {
	Publish(ctx context.Context, session string, topic Topic, payload string) error
	Subscribe(session string, topic Topic, h Handler) (cancel func(), err error)
	Close() error
}

// ParseBucket decodes a SELECTED_BUCKET payload. An empty payload means reset.
func ParseBucket(payload string) (bucket int64, reset bool, err error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return 0, true, nil
	}
	b, err := strconv.ParseInt(payload, 10, 64)
	if err != nil || b < 0 {
		return 0, false, fmt.Errorf("%w: bucket %q", models.ErrCoordination, payload)
	}
	return b, false, nil
}
