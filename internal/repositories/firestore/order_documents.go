package firestore

import (
	"strings"
	"time"

	domain "github.com/Mayne0963/otw-sub006/internal/domain"
)

type orderDocument struct {
	OwnerID            *string                `firestore:"ownerId"`
	ServiceDetails     serviceDetailsDocument `firestore:"serviceDetails"`
	Customer           customerDocument       `firestore:"customerInfo"`
	PaymentMethod      string                 `firestore:"paymentMethod"`
	PaymentStatus      string                 `firestore:"paymentStatus"`
	Status             string                 `firestore:"status"`
	EstimatedPrice     float64                `firestore:"estimatedPrice"`
	ActualPrice        *float64               `firestore:"actualPrice"`
	ExternalSessionID  string                 `firestore:"externalSessionId,omitempty"`
	CreatedAt          time.Time              `firestore:"createdAt"`
	UpdatedAt          time.Time              `firestore:"updatedAt"`
	PaymentCompletedAt *time.Time             `firestore:"paymentCompletedAt"`
	CompletedAt        *time.Time             `firestore:"completedAt"`
	AssignedHelper     *string                `firestore:"assignedHelper"`
	Notes              []string               `firestore:"notes"`
	Metadata           metadataDocument       `firestore:"metadata"`
}

type serviceDetailsDocument struct {
	Type           string           `firestore:"type"`
	Title          string           `firestore:"title"`
	Description    string           `firestore:"description,omitempty"`
	EstimatedPrice float64          `firestore:"estimatedPrice"`
	Grocery        *groceryDocument `firestore:"grocery,omitempty"`
	Rides          *ridesDocument   `firestore:"rides,omitempty"`
	Package        *packageDocument `firestore:"package,omitempty"`
}

type groceryDocument struct {
	StoreName string                `firestore:"storeName,omitempty"`
	Items     []groceryItemDocument `firestore:"items"`
}

type groceryItemDocument struct {
	Name     string `firestore:"name"`
	Quantity int    `firestore:"quantity"`
	Notes    string `firestore:"notes,omitempty"`
}

type ridesDocument struct {
	PickupAddress  string     `firestore:"pickupAddress"`
	DropoffAddress string     `firestore:"dropoffAddress"`
	Passengers     int        `firestore:"passengers"`
	ScheduledFor   *time.Time `firestore:"scheduledFor"`
}

type packageDocument struct {
	PickupAddress  string  `firestore:"pickupAddress"`
	DropoffAddress string  `firestore:"dropoffAddress"`
	RecipientName  string  `firestore:"recipientName,omitempty"`
	RecipientPhone string  `firestore:"recipientPhone,omitempty"`
	Size           string  `firestore:"size,omitempty"`
	WeightKg       float64 `firestore:"weightKg"`
}

type customerDocument struct {
	Name                string `firestore:"name"`
	Phone               string `firestore:"phone"`
	Email               string `firestore:"email"`
	Address             string `firestore:"address"`
	SpecialInstructions string `firestore:"specialInstructions,omitempty"`
}

type metadataDocument struct {
	Source    string `firestore:"source,omitempty"`
	UserAgent string `firestore:"userAgent,omitempty"`
	ClientIP  string `firestore:"clientIp,omitempty"`
}

type indexEntryDocument struct {
	OrderID        string    `firestore:"orderId"`
	ServiceType    string    `firestore:"serviceType"`
	ServiceTitle   string    `firestore:"serviceTitle"`
	EstimatedPrice float64   `firestore:"estimatedPrice"`
	PaymentMethod  string    `firestore:"paymentMethod"`
	Status         string    `firestore:"status"`
	PaymentStatus  string    `firestore:"paymentStatus"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

type outboxDocument struct {
	ID        string    `firestore:"id"`
	OrderID   string    `firestore:"orderId"`
	OwnerID   string    `firestore:"ownerId"`
	Attempts  int       `firestore:"attempts"`
	LastError string    `firestore:"lastError,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func encodeOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		ServiceDetails:     encodeServiceDetails(order.ServiceDetails),
		Customer:           customerDocument(order.Customer),
		PaymentMethod:      string(order.PaymentMethod),
		PaymentStatus:      string(order.PaymentStatus),
		Status:             string(order.Status),
		EstimatedPrice:     order.EstimatedPrice,
		ActualPrice:        order.ActualPrice,
		ExternalSessionID:  order.ExternalSessionID,
		CreatedAt:          order.CreatedAt.UTC(),
		UpdatedAt:          order.UpdatedAt.UTC(),
		PaymentCompletedAt: order.PaymentCompletedAt,
		CompletedAt:        order.CompletedAt,
		AssignedHelper:     order.AssignedHelper,
		Notes:              order.Notes,
		Metadata:           metadataDocument(order.Metadata),
	}
	if owner := strings.TrimSpace(order.OwnerID); owner != "" {
		doc.OwnerID = &owner
	}
	if doc.Notes == nil {
		doc.Notes = []string{}
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:                 id,
		ServiceDetails:     d.ServiceDetails.toDomain(),
		Customer:           domain.CustomerInfo(d.Customer),
		PaymentMethod:      domain.PaymentMethod(d.PaymentMethod),
		PaymentStatus:      domain.PaymentStatus(d.PaymentStatus),
		Status:             domain.OrderStatus(d.Status),
		EstimatedPrice:     d.EstimatedPrice,
		ActualPrice:        d.ActualPrice,
		ExternalSessionID:  d.ExternalSessionID,
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
		PaymentCompletedAt: d.PaymentCompletedAt,
		CompletedAt:        d.CompletedAt,
		AssignedHelper:     d.AssignedHelper,
		Notes:              d.Notes,
		Metadata:           domain.OrderMetadata(d.Metadata),
	}
	if d.OwnerID != nil {
		order.OwnerID = *d.OwnerID
	}
	return order
}

func encodeServiceDetails(details domain.ServiceDetails) serviceDetailsDocument {
	doc := serviceDetailsDocument{
		Type:           string(details.Type),
		Title:          details.Title,
		Description:    details.Description,
		EstimatedPrice: details.EstimatedPrice,
	}
	if g := details.Grocery; g != nil {
		items := make([]groceryItemDocument, 0, len(g.Items))
		for _, item := range g.Items {
			items = append(items, groceryItemDocument(item))
		}
		doc.Grocery = &groceryDocument{StoreName: g.StoreName, Items: items}
	}
	if r := details.Rides; r != nil {
		rides := ridesDocument(*r)
		doc.Rides = &rides
	}
	if p := details.Package; p != nil {
		pkg := packageDocument(*p)
		doc.Package = &pkg
	}
	return doc
}

func (d serviceDetailsDocument) toDomain() domain.ServiceDetails {
	details := domain.ServiceDetails{
		Type:           domain.ServiceType(d.Type),
		Title:          d.Title,
		Description:    d.Description,
		EstimatedPrice: d.EstimatedPrice,
	}
	if g := d.Grocery; g != nil {
		items := make([]domain.GroceryItem, 0, len(g.Items))
		for _, item := range g.Items {
			items = append(items, domain.GroceryItem(item))
		}
		details.Grocery = &domain.GroceryDetails{StoreName: g.StoreName, Items: items}
	}
	if r := d.Rides; r != nil {
		rides := domain.RidesDetails(*r)
		details.Rides = &rides
	}
	if p := d.Package; p != nil {
		pkg := domain.PackageDetails(*p)
		details.Package = &pkg
	}
	return details
}

func encodeIndexEntry(entry domain.OrderIndexEntry) indexEntryDocument {
	return indexEntryDocument{
		OrderID:        entry.OrderID,
		ServiceType:    string(entry.ServiceType),
		ServiceTitle:   entry.ServiceTitle,
		EstimatedPrice: entry.EstimatedPrice,
		PaymentMethod:  string(entry.PaymentMethod),
		Status:         string(entry.Status),
		PaymentStatus:  string(entry.PaymentStatus),
		CreatedAt:      entry.CreatedAt.UTC(),
		UpdatedAt:      entry.UpdatedAt.UTC(),
	}
}

func (d indexEntryDocument) toDomain() domain.OrderIndexEntry {
	return domain.OrderIndexEntry{
		OrderID:        d.OrderID,
		ServiceType:    domain.ServiceType(d.ServiceType),
		ServiceTitle:   d.ServiceTitle,
		EstimatedPrice: d.EstimatedPrice,
		PaymentMethod:  domain.PaymentMethod(d.PaymentMethod),
		Status:         domain.OrderStatus(d.Status),
		PaymentStatus:  domain.PaymentStatus(d.PaymentStatus),
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}
}
