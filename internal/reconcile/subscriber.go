package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kusina-pos/api/internal/model"
	"github.com/sirupsen/logrus"
)

const (
	minReconnectDelay = time.Second
	maxReconnectDelay = 30 * time.Second
)

// Subscriber follows an order's websocket room and feeds every pushed
// snapshot to the tracker. It reconnects until the order is finished or
// ctx is cancelled.
type Subscriber struct {
	// BaseURL is the server's http(s) or ws(s) base URL.
	BaseURL string
	Dialer  *websocket.Dialer
	Log     logrus.FieldLogger
}

type pushMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (s *Subscriber) Run(ctx context.Context, t *Tracker) error {
	endpoint, err := s.endpoint(t)
	if err != nil {
		return err
	}
	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	log := s.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("order_id", t.OrderID())

	delay := minReconnectDelay
	for {
		connected, err := s.session(ctx, dialer, endpoint, t)
		select {
		case <-ctx.Done():
			return nil
		case <-t.Finished():
			return nil
		default:
		}
		if connected {
			delay = minReconnectDelay
		}
		log.WithError(err).WithField("retry_in", delay.String()).Warn("push stream disconnected")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-t.Finished():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// session reads one connection until it fails. connected reports whether
// the dial succeeded.
func (s *Subscriber) session(ctx context.Context, dialer *websocket.Dialer, endpoint string, t *Tracker) (connected bool, err error) {
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage on shutdown.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-t.Finished():
		case <-stop:
			return
		}
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		// The server batches queued messages into one frame.
		for _, line := range bytes.Split(data, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			o, ok := decodePush(line)
			if !ok {
				continue
			}
			t.Observe(ctx, Update{Source: SourcePush, Order: o})
		}
	}
}

func decodePush(line []byte) (model.Order, bool) {
	var msg pushMessage
	if err := json.Unmarshal(line, &msg); err != nil || len(msg.Payload) == 0 {
		return model.Order{}, false
	}
	var o model.Order
	if err := json.Unmarshal(msg.Payload, &o); err != nil {
		return model.Order{}, false
	}
	return o, true
}

func (s *Subscriber) endpoint(t *Tracker) (string, error) {
	u, err := url.Parse(strings.TrimRight(s.BaseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws/orders/" + t.OrderID().String()
	return u.String(), nil
}
