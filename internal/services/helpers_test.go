package services

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "github.com/Mayne0963/otw-sub006/internal/domain"
	"github.com/Mayne0963/otw-sub006/internal/payments"
)

type stubGateway struct {
	mu         sync.Mutex
	createFn   func(ctx context.Context, req payments.CheckoutRequest) (payments.Session, error)
	retrieveFn func(ctx context.Context, sessionID string) (payments.SessionDetails, error)
	created    []payments.CheckoutRequest
	retrieved  int
}

func (s *stubGateway) CreateCheckoutSession(ctx context.Context, req payments.CheckoutRequest) (payments.Session, error) {
	s.mu.Lock()
	s.created = append(s.created, req)
	s.mu.Unlock()
	if s.createFn == nil {
		return payments.Session{}, errors.New("create not stubbed")
	}
	return s.createFn(ctx, req)
}

func (s *stubGateway) RetrieveSession(ctx context.Context, sessionID string) (payments.SessionDetails, error) {
	s.mu.Lock()
	s.retrieved++
	s.mu.Unlock()
	if s.retrieveFn == nil {
		return payments.SessionDetails{}, errors.New("retrieve not stubbed")
	}
	return s.retrieveFn(ctx, sessionID)
}

func paidSession(amount int64) func(context.Context, string) (payments.SessionDetails, error) {
	return func(_ context.Context, sessionID string) (payments.SessionDetails, error) {
		return payments.SessionDetails{ID: sessionID, Status: payments.SessionComplete, Payment: payments.SessionPaid, AmountTotal: amount}, nil
	}
}

type stubPublisher struct {
	mu     sync.Mutex
	err    error
	events []OrderEvent
}

func (p *stubPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, event)
	return "msg-" + event.EventID, nil
}

func (p *stubPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, event := range p.events {
		out = append(out, event.Type)
	}
	return out
}

type recordedLog struct {
	event  string
	fields map[string]any
}

type logRecorder struct {
	mu      sync.Mutex
	entries []recordedLog
}

func (r *logRecorder) log(_ context.Context, event string, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, recordedLog{event: event, fields: fields})
}

func (r *logRecorder) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.entries {
		if entry.event == event {
			return true
		}
	}
	return false
}

func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := current
		current = current.Add(step)
		return now
	}
}

func groceryCommand(owner string, method domain.PaymentMethod) CreateOrderCommand {
	return CreateOrderCommand{
		ServiceDetails: domain.ServiceDetails{
			Type:           domain.ServiceTypeGrocery,
			Title:          "Weekly groceries",
			Description:    "Milk, eggs and bread",
			EstimatedPrice: 25.99,
			Grocery: &domain.GroceryDetails{
				StoreName: "Corner Market",
				Items:     []domain.GroceryItem{{Name: "Milk", Quantity: 1}},
			},
		},
		Customer: domain.CustomerInfo{
			Name:                "Ada Lovelace",
			Phone:               "555-0100",
			Email:               "ada@example.com",
			Address:             "12 Analytical Way",
			SpecialInstructions: "Ring twice",
		},
		PaymentMethod: method,
		OwnerID:       owner,
		Metadata:      domain.OrderMetadata{Source: "web"},
	}
}
