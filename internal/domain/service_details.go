package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceType discriminates the service details variants.
type ServiceType string

const (
	ServiceTypeGrocery ServiceType = "grocery"
	ServiceTypeRides   ServiceType = "rides"
	ServiceTypePackage ServiceType = "package"
)

var serviceTypePrefixes = map[ServiceType]string{
	ServiceTypeGrocery: "GRO",
	ServiceTypeRides:   "RIDE",
	ServiceTypePackage: "PKG",
}

// Valid reports whether the service type is a recognised variant.
func (t ServiceType) Valid() bool {
	_, ok := serviceTypePrefixes[t]
	return ok
}

// OrderPrefix returns the identifier prefix used for orders of this type.
func (t ServiceType) OrderPrefix() string {
	return serviceTypePrefixes[t]
}

// ServiceDetails describes what the customer requested. Exactly one of the variant payloads may be
// set and it must match Type; a nil payload means the client sent only the common fields.
type ServiceDetails struct {
	Type           ServiceType
	Title          string
	Description    string
	EstimatedPrice float64
	Grocery        *GroceryDetails
	Rides          *RidesDetails
	Package        *PackageDetails
}

// GroceryDetails is the payload for grocery runs.
type GroceryDetails struct {
	StoreName string
	Items     []GroceryItem
}

// GroceryItem is a single shopping-list line.
type GroceryItem struct {
	Name     string
	Quantity int
	Notes    string
}

// RidesDetails is the payload for ride requests.
type RidesDetails struct {
	PickupAddress  string
	DropoffAddress string
	Passengers     int
	ScheduledFor   *time.Time
}

// PackageDetails is the payload for package deliveries.
type PackageDetails struct {
	PickupAddress  string
	DropoffAddress string
	RecipientName  string
	RecipientPhone string
	Size           string
	WeightKg       float64
}

// Validate checks the union is well formed.
func (d ServiceDetails) Validate() error {
	var errs []error
	if !d.Type.Valid() {
		errs = append(errs, fmt.Errorf("serviceDetails.type %q is not supported", d.Type))
	}
	if strings.TrimSpace(d.Title) == "" {
		errs = append(errs, errors.New("serviceDetails.title is required"))
	}
	if !ValidPrice(d.EstimatedPrice) {
		errs = append(errs, errors.New("serviceDetails.estimatedPrice must be a finite non-negative number"))
	}

	set := 0
	if d.Grocery != nil {
		set++
		if d.Type != ServiceTypeGrocery {
			errs = append(errs, fmt.Errorf("grocery details supplied for %q service", d.Type))
		} else {
			errs = append(errs, d.Grocery.validate()...)
		}
	}
	if d.Rides != nil {
		set++
		if d.Type != ServiceTypeRides {
			errs = append(errs, fmt.Errorf("rides details supplied for %q service", d.Type))
		} else {
			errs = append(errs, d.Rides.validate()...)
		}
	}
	if d.Package != nil {
		set++
		if d.Type != ServiceTypePackage {
			errs = append(errs, fmt.Errorf("package details supplied for %q service", d.Type))
		} else {
			errs = append(errs, d.Package.validate()...)
		}
	}
	if set > 1 {
		errs = append(errs, errors.New("serviceDetails carries more than one variant payload"))
	}
	return errors.Join(errs...)
}

func (g *GroceryDetails) validate() []error {
	var errs []error
	for i, item := range g.Items {
		if strings.TrimSpace(item.Name) == "" {
			errs = append(errs, fmt.Errorf("grocery item %d name is required", i))
		}
		if item.Quantity < 0 {
			errs = append(errs, fmt.Errorf("grocery item %d quantity must not be negative", i))
		}
	}
	return errs
}

func (r *RidesDetails) validate() []error {
	var errs []error
	if strings.TrimSpace(r.PickupAddress) == "" {
		errs = append(errs, errors.New("rides pickupAddress is required"))
	}
	if strings.TrimSpace(r.DropoffAddress) == "" {
		errs = append(errs, errors.New("rides dropoffAddress is required"))
	}
	if r.Passengers < 0 {
		errs = append(errs, errors.New("rides passengers must not be negative"))
	}
	return errs
}

func (p *PackageDetails) validate() []error {
	var errs []error
	if strings.TrimSpace(p.PickupAddress) == "" {
		errs = append(errs, errors.New("package pickupAddress is required"))
	}
	if strings.TrimSpace(p.DropoffAddress) == "" {
		errs = append(errs, errors.New("package dropoffAddress is required"))
	}
	if !ValidPrice(p.WeightKg) {
		errs = append(errs, errors.New("package weightKg must be a finite non-negative number"))
	}
	return errs
}
