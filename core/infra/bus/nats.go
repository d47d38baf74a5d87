package bus

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// Event is a platform lifecycle notification carried over the bus.
type Event struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	PackageID string `json:"package_id,omitempty"`
	TenantID  string `json:"tenant_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Detail    string `json:"detail,omitempty"`
	At        int64  `json:"at"`
}

// Lifecycle event subjects.
const (
	SubjectInstalled     = "platform.package.installed"
	SubjectUninstalled   = "platform.package.uninstalled"
	SubjectStatusChanged = "platform.package.status_changed"
	SubjectHealth        = "platform.package.health"
)

var (
	errNilBus   = errors.New("nats bus not initialized")
	errNilEvent = errors.New("nil event")
)

// Publisher publishes lifecycle events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(subject string, event *Event) error
}

// NatsBus is a thin wrapper over a NATS connection that speaks JSON events.
type NatsBus struct {
	nc *nats.Conn
}

// NewNatsBus dials NATS at the provided URL.
func NewNatsBus(url string) (*NatsBus, error) {
	opts := []nats.Option{
		nats.Name("apphub-bus"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("[BUS] disconnected from NATS: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[BUS] reconnected to NATS at %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Printf("[BUS] connection closed")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NatsBus{nc: nc}, nil
}

// Close shuts down the underlying NATS connection.
func (b *NatsBus) Close() {
	if b != nil && b.nc != nil {
		b.nc.Close()
	}
}

// Publish sends an event on the given subject.
func (b *NatsBus) Publish(subject string, event *Event) error {
	if b == nil || b.nc == nil {
		return errNilBus
	}
	if event == nil {
		return errNilEvent
	}
	if subject == "" {
		return errors.New("empty subject")
	}
	if event.At == 0 {
		event.At = time.Now().Unix()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.nc.Publish(subject, data)
}

// Subscribe registers a handler for a subject pattern. Decode failures are
// logged and skipped so one bad payload does not wedge the subscription.
func (b *NatsBus) Subscribe(subject string, handler func(*Event)) error {
	if b == nil || b.nc == nil {
		return errNilBus
	}
	_, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("[BUS] drop undecodable event on %s: %v", msg.Subject, err)
			return
		}
		handler(&event)
	})
	return err
}
