// Package events fans order changes out to realtime subscribers and the
// message broker.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kusina-pos/api/internal/model"
	"github.com/kusina-pos/api/internal/ws"
)

const (
	TypeOrderCreated = "order.created"
	TypeOrderUpdated = "order.updated"

	// TypeOrderSnapshot is sent once to a new order room subscriber.
	TypeOrderSnapshot = "order.snapshot"
)

// Event carries a full order snapshot; subscribers never need to refetch.
type Event struct {
	Type  string      `json:"type"`
	Order model.Order `json:"order"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Broadcaster is satisfied by *ws.Hub.
type Broadcaster interface {
	Broadcast(room string, event ws.Event)
}

// HubPublisher pushes events to the order's own room and the staff room.
type HubPublisher struct {
	hub Broadcaster
}

func NewHubPublisher(hub Broadcaster) *HubPublisher {
	return &HubPublisher{hub: hub}
}

func (p *HubPublisher) Publish(_ context.Context, ev Event) error {
	payload, err := json.Marshal(ev.Order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	msg := ws.Event{Type: ev.Type, Payload: payload}
	p.hub.Broadcast(ev.Order.ID.String(), msg)
	p.hub.Broadcast(ws.StaffRoom, msg)
	return nil
}
