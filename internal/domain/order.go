package domain

import "time"

// PaymentMethod captures how the customer intends to settle the order.
type PaymentMethod string

const (
	// PaymentMethodContact settles on delivery after the customer is contacted.
	PaymentMethodContact PaymentMethod = "contact"
	// PaymentMethodCard settles through a hosted checkout session.
	PaymentMethodCard PaymentMethod = "card"
)

// Valid reports whether the payment method is a recognised variant.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodContact, PaymentMethodCard:
		return true
	}
	return false
}

// PaymentStatus tracks the settlement lifecycle of an order.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusPaid       PaymentStatus = "paid"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// OrderStatus tracks fulfilment progress. Everything after confirmed is driven externally.
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusReady          OrderStatus = "ready"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

var paymentTransitions = map[PaymentStatus]map[PaymentStatus]struct{}{
	PaymentStatusPending: {
		PaymentStatusProcessing: {},
		PaymentStatusPaid:       {},
		PaymentStatusFailed:     {},
	},
	PaymentStatusProcessing: {
		PaymentStatusPaid:   {},
		PaymentStatusFailed: {},
	},
	PaymentStatusPaid: {
		PaymentStatusRefunded: {},
	},
}

// CanTransitionPayment reports whether the payment status may move from one state to another.
func CanTransitionPayment(from, to PaymentStatus) bool {
	next, ok := paymentTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// InitialPaymentStatus returns the status a freshly created order starts in.
func InitialPaymentStatus(method PaymentMethod) PaymentStatus {
	if method == PaymentMethodCard {
		return PaymentStatusProcessing
	}
	return PaymentStatusPending
}

// CustomerInfo holds the contact details captured with an order.
type CustomerInfo struct {
	Name                string
	Phone               string
	Email               string
	Address             string
	SpecialInstructions string
}

// OrderMetadata records where an order came from.
type OrderMetadata struct {
	Source    string
	UserAgent string
	ClientIP  string
}

// Order is the primary aggregate persisted for every customer request.
type Order struct {
	ID                 string
	OwnerID            string
	ServiceDetails     ServiceDetails
	Customer           CustomerInfo
	PaymentMethod      PaymentMethod
	PaymentStatus      PaymentStatus
	Status             OrderStatus
	EstimatedPrice     float64
	ActualPrice        *float64
	ExternalSessionID  string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	PaymentCompletedAt *time.Time
	CompletedAt        *time.Time
	AssignedHelper     *string
	Notes              []string
	Metadata           OrderMetadata
}

// IsGuest reports whether the order has no resolved owner.
func (o Order) IsGuest() bool {
	return o.OwnerID == ""
}

// IndexEntry projects the order into the owner's index.
func (o Order) IndexEntry() OrderIndexEntry {
	return OrderIndexEntry{
		OrderID:        o.ID,
		ServiceType:    o.ServiceDetails.Type,
		ServiceTitle:   o.ServiceDetails.Title,
		EstimatedPrice: o.EstimatedPrice,
		PaymentMethod:  o.PaymentMethod,
		Status:         o.Status,
		PaymentStatus:  o.PaymentStatus,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

// OrderIndexEntry is the denormalised per-owner summary used for "my orders" reads.
type OrderIndexEntry struct {
	OrderID        string
	ServiceType    ServiceType
	ServiceTitle   string
	EstimatedPrice float64
	PaymentMethod  PaymentMethod
	Status         OrderStatus
	PaymentStatus  PaymentStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PaymentConfirmation carries the fields written when a checkout session settles.
type PaymentConfirmation struct {
	SessionID   string
	AmountMinor MinorUnits
	ConfirmedAt time.Time
}

// IndexOutboxEntry marks an owner index entry that still needs to be mirrored.
type IndexOutboxEntry struct {
	ID        string
	OrderID   string
	OwnerID   string
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}
