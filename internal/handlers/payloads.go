package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/Mayne0963/otw-sub006/internal/domain"
)

var errInvalidPayload = errors.New("invalid payload")

type serviceDetailsRequest struct {
	Type           string          `json:"type"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	EstimatedPrice json.Number     `json:"estimatedPrice"`
	Details        json.RawMessage `json:"details"`
}

type groceryDetailsPayload struct {
	StoreName string               `json:"storeName"`
	Items     []groceryItemPayload `json:"items"`
}

type groceryItemPayload struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes,omitempty"`
}

type ridesDetailsPayload struct {
	PickupAddress  string     `json:"pickupAddress"`
	DropoffAddress string     `json:"dropoffAddress"`
	Passengers     int        `json:"passengers,omitempty"`
	ScheduledFor   *time.Time `json:"scheduledFor,omitempty"`
}

type packageDetailsPayload struct {
	PickupAddress  string  `json:"pickupAddress"`
	DropoffAddress string  `json:"dropoffAddress"`
	RecipientName  string  `json:"recipientName,omitempty"`
	RecipientPhone string  `json:"recipientPhone,omitempty"`
	Size           string  `json:"size,omitempty"`
	WeightKg       float64 `json:"weightKg,omitempty"`
}

// toDomain decodes the variant payload according to type. Unknown types are passed through so the
// service reports them alongside any other validation failures.
func (p serviceDetailsRequest) toDomain() (domain.ServiceDetails, error) {
	details := domain.ServiceDetails{
		Type:        domain.ServiceType(strings.ToLower(strings.TrimSpace(p.Type))),
		Title:       p.Title,
		Description: p.Description,
	}
	if raw := strings.TrimSpace(p.EstimatedPrice.String()); raw != "" {
		price, err := p.EstimatedPrice.Float64()
		if err != nil {
			return domain.ServiceDetails{}, fmt.Errorf("%w: serviceDetails.estimatedPrice must be a number", errInvalidPayload)
		}
		details.EstimatedPrice = price
	}

	raw := bytes.TrimSpace(p.Details)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return details, nil
	}
	switch details.Type {
	case domain.ServiceTypeGrocery:
		var payload groceryDetailsPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return domain.ServiceDetails{}, fmt.Errorf("%w: grocery details: %v", errInvalidPayload, err)
		}
		grocery := &domain.GroceryDetails{StoreName: payload.StoreName}
		for _, item := range payload.Items {
			grocery.Items = append(grocery.Items, domain.GroceryItem{Name: item.Name, Quantity: item.Quantity, Notes: item.Notes})
		}
		details.Grocery = grocery
	case domain.ServiceTypeRides:
		var payload ridesDetailsPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return domain.ServiceDetails{}, fmt.Errorf("%w: rides details: %v", errInvalidPayload, err)
		}
		details.Rides = &domain.RidesDetails{
			PickupAddress:  payload.PickupAddress,
			DropoffAddress: payload.DropoffAddress,
			Passengers:     payload.Passengers,
			ScheduledFor:   payload.ScheduledFor,
		}
	case domain.ServiceTypePackage:
		var payload packageDetailsPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return domain.ServiceDetails{}, fmt.Errorf("%w: package details: %v", errInvalidPayload, err)
		}
		details.Package = &domain.PackageDetails{
			PickupAddress:  payload.PickupAddress,
			DropoffAddress: payload.DropoffAddress,
			RecipientName:  payload.RecipientName,
			RecipientPhone: payload.RecipientPhone,
			Size:           payload.Size,
			WeightKg:       payload.WeightKg,
		}
	}
	return details, nil
}

type customerInfoPayload struct {
	Name                string `json:"name"`
	Phone               string `json:"phone"`
	Email               string `json:"email"`
	Address             string `json:"address"`
	SpecialInstructions string `json:"specialInstructions,omitempty"`
}

func (p customerInfoPayload) toDomain() domain.CustomerInfo {
	return domain.CustomerInfo{
		Name:                p.Name,
		Phone:               p.Phone,
		Email:               p.Email,
		Address:             p.Address,
		SpecialInstructions: p.SpecialInstructions,
	}
}

type serviceDetailsResponse struct {
	Type           string  `json:"type"`
	Title          string  `json:"title"`
	Description    string  `json:"description,omitempty"`
	EstimatedPrice float64 `json:"estimatedPrice"`
	Details        any     `json:"details,omitempty"`
}

type orderResponse struct {
	ID                 string                 `json:"id"`
	OwnerID            string                 `json:"ownerId,omitempty"`
	ServiceDetails     serviceDetailsResponse `json:"serviceDetails"`
	CustomerInfo       customerInfoPayload    `json:"customerInfo"`
	PaymentMethod      string                 `json:"paymentMethod"`
	PaymentStatus      string                 `json:"paymentStatus"`
	Status             string                 `json:"status"`
	EstimatedPrice     float64                `json:"estimatedPrice"`
	ActualPrice        *float64               `json:"actualPrice,omitempty"`
	ExternalSessionID  string                 `json:"externalSessionId,omitempty"`
	AssignedHelper     *string                `json:"assignedHelper,omitempty"`
	Notes              []string               `json:"notes"`
	CreatedAt          string                 `json:"createdAt"`
	UpdatedAt          string                 `json:"updatedAt"`
	PaymentCompletedAt *string                `json:"paymentCompletedAt"`
	CompletedAt        *string                `json:"completedAt"`
}

func newOrderResponse(order domain.Order) orderResponse {
	details := serviceDetailsResponse{
		Type:           string(order.ServiceDetails.Type),
		Title:          order.ServiceDetails.Title,
		Description:    order.ServiceDetails.Description,
		EstimatedPrice: order.ServiceDetails.EstimatedPrice,
	}
	switch {
	case order.ServiceDetails.Grocery != nil:
		g := order.ServiceDetails.Grocery
		payload := groceryDetailsPayload{StoreName: g.StoreName, Items: make([]groceryItemPayload, 0, len(g.Items))}
		for _, item := range g.Items {
			payload.Items = append(payload.Items, groceryItemPayload{Name: item.Name, Quantity: item.Quantity, Notes: item.Notes})
		}
		details.Details = payload
	case order.ServiceDetails.Rides != nil:
		r := order.ServiceDetails.Rides
		details.Details = ridesDetailsPayload{
			PickupAddress:  r.PickupAddress,
			DropoffAddress: r.DropoffAddress,
			Passengers:     r.Passengers,
			ScheduledFor:   r.ScheduledFor,
		}
	case order.ServiceDetails.Package != nil:
		p := order.ServiceDetails.Package
		details.Details = packageDetailsPayload{
			PickupAddress:  p.PickupAddress,
			DropoffAddress: p.DropoffAddress,
			RecipientName:  p.RecipientName,
			RecipientPhone: p.RecipientPhone,
			Size:           p.Size,
			WeightKg:       p.WeightKg,
		}
	}

	notes := order.Notes
	if notes == nil {
		notes = []string{}
	}
	return orderResponse{
		ID:             order.ID,
		OwnerID:        order.OwnerID,
		ServiceDetails: details,
		CustomerInfo: customerInfoPayload{
			Name:                order.Customer.Name,
			Phone:               order.Customer.Phone,
			Email:               order.Customer.Email,
			Address:             order.Customer.Address,
			SpecialInstructions: order.Customer.SpecialInstructions,
		},
		PaymentMethod:      string(order.PaymentMethod),
		PaymentStatus:      string(order.PaymentStatus),
		Status:             string(order.Status),
		EstimatedPrice:     order.EstimatedPrice,
		ActualPrice:        order.ActualPrice,
		ExternalSessionID:  order.ExternalSessionID,
		AssignedHelper:     order.AssignedHelper,
		Notes:              notes,
		CreatedAt:          formatTime(order.CreatedAt),
		UpdatedAt:          formatTime(order.UpdatedAt),
		PaymentCompletedAt: formatTimePtr(order.PaymentCompletedAt),
		CompletedAt:        formatTimePtr(order.CompletedAt),
	}
}

type orderIndexResponse struct {
	OrderID        string  `json:"orderId"`
	ServiceType    string  `json:"serviceType"`
	ServiceTitle   string  `json:"serviceTitle"`
	EstimatedPrice float64 `json:"estimatedPrice"`
	PaymentMethod  string  `json:"paymentMethod"`
	Status         string  `json:"status"`
	PaymentStatus  string  `json:"paymentStatus"`
	CreatedAt      string  `json:"createdAt"`
}

func newOrderIndexResponse(entry domain.OrderIndexEntry) orderIndexResponse {
	return orderIndexResponse{
		OrderID:        entry.OrderID,
		ServiceType:    string(entry.ServiceType),
		ServiceTitle:   entry.ServiceTitle,
		EstimatedPrice: entry.EstimatedPrice,
		PaymentMethod:  string(entry.PaymentMethod),
		Status:         string(entry.Status),
		PaymentStatus:  string(entry.PaymentStatus),
		CreatedAt:      formatTime(entry.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	value := formatTime(*t)
	return &value
}
