package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/Mayne0963/otw-sub006/internal/domain"
	"github.com/Mayne0963/otw-sub006/internal/platform/observability"
	"github.com/Mayne0963/otw-sub006/internal/platform/pagination"
	"github.com/Mayne0963/otw-sub006/internal/platform/textutil"
	"github.com/Mayne0963/otw-sub006/internal/repositories"
)

const (
	maxFreeTextLength = 2000
	maxTitleLength    = 200
)

// IDGenerator returns the random suffix appended to order IDs.
type IDGenerator func() (string, error)

// RandomSuffix returns 8 upper-case hex characters from crypto/rand.
func RandomSuffix() (string, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf[:])), nil
}

// OrderServiceDeps wires the dependencies required by the order service.
type OrderServiceDeps struct {
	Orders    repositories.OrderRepository
	Events    OrderEventPublisher
	IDs       IDGenerator
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
	Sanitizer func(string) string
}

type orderService struct {
	orders   repositories.OrderRepository
	events   OrderEventPublisher
	ids      IDGenerator
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
	sanitize func(string) string
}

// NewOrderService constructs an OrderService validating required dependencies.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	ids := deps.IDs
	if ids == nil {
		ids = RandomSuffix
	}
	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = textutil.CleanText
	}
	return &orderService{
		orders: deps.Orders,
		events: deps.Events,
		ids:    ids,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:   logger,
		sanitize: sanitize,
	}, nil
}

// CreateOrder validates the request, persists the order and, for owned orders, its index entry.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	if s == nil || s.orders == nil {
		return domain.Order{}, ErrServiceMisconfigured
	}
	details, customer, err := s.normaliseOrderInput(cmd)
	if err != nil {
		return domain.Order{}, err
	}

	now := s.now()
	orderID, err := s.newOrderID(details.Type, now)
	if err != nil {
		s.logger(ctx, "orders.id_generation_failed", map[string]any{"error": err})
		return domain.Order{}, fmt.Errorf("%w: %v", ErrOrderPersistence, err)
	}

	order := domain.Order{
		ID:             orderID,
		OwnerID:        strings.TrimSpace(cmd.OwnerID),
		ServiceDetails: details,
		Customer:       customer,
		PaymentMethod:  cmd.PaymentMethod,
		PaymentStatus:  domain.InitialPaymentStatus(cmd.PaymentMethod),
		Status:         domain.OrderStatusPending,
		EstimatedPrice: details.EstimatedPrice,
		CreatedAt:      now,
		UpdatedAt:      now,
		Notes:          []string{},
		Metadata:       cmd.Metadata,
	}

	result, err := s.orders.CommitOrder(ctx, order)
	if err != nil {
		return domain.Order{}, s.translateCommitError(ctx, order.ID, err)
	}
	s.logMirror(ctx, order, result.Mirror)

	s.logger(ctx, "orders.created", map[string]any{
		"orderId":       order.ID,
		"serviceType":   string(details.Type),
		"paymentMethod": string(order.PaymentMethod),
		"guest":         order.IsGuest(),
		"contactEmail":  observability.MaskEmail(order.Customer.Email),
		"contactPhone":  observability.MaskPhone(order.Customer.Phone),
	})
	s.publish(ctx, OrderEventCreated, result.Order)
	return result.Order, nil
}

// GetOrder loads a single order.
func (s *orderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if s == nil || s.orders == nil {
		return domain.Order{}, ErrServiceMisconfigured
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: orderId is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, translateLoadError(err)
	}
	return order, nil
}

// ListOwnerOrders reads the owner's index, newest first.
func (s *orderService) ListOwnerOrders(ctx context.Context, ownerID string, params pagination.Params) (pagination.Page[domain.OrderIndexEntry], error) {
	if s == nil || s.orders == nil {
		return pagination.Page[domain.OrderIndexEntry]{}, ErrServiceMisconfigured
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return pagination.Page[domain.OrderIndexEntry]{}, fmt.Errorf("%w: owner is required", ErrOrderInvalidInput)
	}
	page, err := s.orders.ListIndex(ctx, ownerID, params)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return pagination.Page[domain.OrderIndexEntry]{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
		return pagination.Page[domain.OrderIndexEntry]{}, fmt.Errorf("%w: %v", ErrOrderPersistence, err)
	}
	return page, nil
}

func (s *orderService) normaliseOrderInput(cmd CreateOrderCommand) (domain.ServiceDetails, domain.CustomerInfo, error) {
	details := cmd.ServiceDetails
	details.Type = domain.ServiceType(strings.ToLower(strings.TrimSpace(string(details.Type))))
	details.Title = textutil.Truncate(s.sanitize(details.Title), maxTitleLength)
	details.Description = textutil.Truncate(s.sanitize(details.Description), maxFreeTextLength)

	customer := cmd.Customer
	customer.Name = s.sanitize(customer.Name)
	customer.Phone = strings.TrimSpace(customer.Phone)
	customer.Email = strings.TrimSpace(customer.Email)
	customer.Address = s.sanitize(customer.Address)
	customer.SpecialInstructions = textutil.Truncate(s.sanitize(customer.SpecialInstructions), maxFreeTextLength)

	var errs []error
	if err := validateCustomer(customer); err != nil {
		errs = append(errs, err)
	}
	if err := details.Validate(); err != nil {
		errs = append(errs, err)
	}
	if !cmd.PaymentMethod.Valid() {
		errs = append(errs, fmt.Errorf("paymentMethod %q is not supported", cmd.PaymentMethod))
	}
	if err := errors.Join(errs...); err != nil {
		return domain.ServiceDetails{}, domain.CustomerInfo{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}
	return details, customer, nil
}

func validateCustomer(customer domain.CustomerInfo) error {
	var errs []error
	if customer.Name == "" {
		errs = append(errs, errors.New("customerInfo.name is required"))
	}
	if customer.Phone == "" {
		errs = append(errs, errors.New("customerInfo.phone is required"))
	}
	if customer.Email == "" {
		errs = append(errs, errors.New("customerInfo.email is required"))
	} else if _, err := mail.ParseAddress(customer.Email); err != nil {
		errs = append(errs, errors.New("customerInfo.email is not a valid address"))
	}
	if customer.Address == "" {
		errs = append(errs, errors.New("customerInfo.address is required"))
	}
	return errors.Join(errs...)
}

func (s *orderService) newOrderID(serviceType domain.ServiceType, now time.Time) (string, error) {
	suffix, err := s.ids()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%s", serviceType.OrderPrefix(), now.UnixMilli(), suffix), nil
}

func (s *orderService) translateCommitError(ctx context.Context, orderID string, err error) error {
	s.logger(ctx, "orders.persist_failed", map[string]any{
		"orderId": orderID,
		"error":   err,
	})
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsConflict() {
		return fmt.Errorf("%w: %s", ErrOrderConflict, orderID)
	}
	return fmt.Errorf("%w: %v", ErrOrderPersistence, err)
}

func (s *orderService) logMirror(ctx context.Context, order domain.Order, mirror repositories.MirrorOutcome) {
	if !mirror.Attempted || mirror.Err == nil {
		return
	}
	s.logger(ctx, "orders.index_mirror_failed", map[string]any{
		"orderId":  order.ID,
		"ownerId":  order.OwnerID,
		"attempts": mirror.Attempts,
		"deferred": mirror.Deferred,
		"error":    mirror.Err,
	})
}

func (s *orderService) publish(ctx context.Context, eventType string, order domain.Order) {
	publishOrderEvent(ctx, s.events, s.logger, eventType, order, s.now())
}

func publishOrderEvent(ctx context.Context, publisher OrderEventPublisher, logger func(context.Context, string, map[string]any), eventType string, order domain.Order, at time.Time) {
	if publisher == nil {
		return
	}
	event := OrderEvent{
		EventID:       ulid.Make().String(),
		Type:          eventType,
		OrderID:       order.ID,
		OwnerID:       order.OwnerID,
		ServiceType:   string(order.ServiceDetails.Type),
		PaymentMethod: string(order.PaymentMethod),
		PaymentStatus: string(order.PaymentStatus),
		Status:        string(order.Status),
		ActualPrice:   order.ActualPrice,
		OccurredAt:    at,
	}
	if _, err := publisher.PublishOrderEvent(ctx, event); err != nil {
		logger(ctx, "orders.event_publish_failed", map[string]any{
			"orderId":   order.ID,
			"eventType": eventType,
			"error":     err,
		})
	}
}

func translateLoadError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrOrderNotFound
	}
	return fmt.Errorf("%w: %v", ErrOrderPersistence, err)
}
