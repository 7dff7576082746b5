package domain

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestCanTransitionPayment(t *testing.T) {
	cases := []struct {
		from, to PaymentStatus
		want     bool
	}{
		{PaymentStatusPending, PaymentStatusPaid, true},
		{PaymentStatusProcessing, PaymentStatusPaid, true},
		{PaymentStatusProcessing, PaymentStatusFailed, true},
		{PaymentStatusPaid, PaymentStatusPaid, false},
		{PaymentStatusPaid, PaymentStatusRefunded, true},
		{PaymentStatusFailed, PaymentStatusPaid, false},
		{PaymentStatusRefunded, PaymentStatusPaid, false},
	}
	for _, tc := range cases {
		if got := CanTransitionPayment(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransitionPayment(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestInitialPaymentStatus(t *testing.T) {
	if got := InitialPaymentStatus(PaymentMethodCard); got != PaymentStatusProcessing {
		t.Fatalf("card: expected processing, got %s", got)
	}
	if got := InitialPaymentStatus(PaymentMethodContact); got != PaymentStatusPending {
		t.Fatalf("contact: expected pending, got %s", got)
	}
}

func TestMinorUnitsBoundaries(t *testing.T) {
	for _, raw := range []int64{0, -1} {
		if _, err := NewMinorUnits(raw); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount for %d, got %v", raw, err)
		}
	}
	amount, err := NewMinorUnits(1)
	if err != nil {
		t.Fatalf("expected 1 to be accepted: %v", err)
	}
	if amount.Int64() != 1 {
		t.Fatalf("unexpected amount %d", amount)
	}
}

func TestParseMinorUnits(t *testing.T) {
	amount, err := ParseMinorUnits(json.Number("2599"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if amount.Major() != 25.99 {
		t.Fatalf("expected 25.99, got %v", amount.Major())
	}
	for _, raw := range []string{"", "25.99", "abc", "0", "-5"} {
		if _, err := ParseMinorUnits(json.Number(raw)); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("expected %q to be rejected, got %v", raw, err)
		}
	}
}

func TestServiceDetailsValidate(t *testing.T) {
	valid := ServiceDetails{
		Type:           ServiceTypeRides,
		Title:          "Airport run",
		EstimatedPrice: 42,
		Rides:          &RidesDetails{PickupAddress: "1 Main St", DropoffAddress: "Terminal B", Passengers: 2},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid details, got %v", err)
	}

	mismatched := valid
	mismatched.Rides = nil
	mismatched.Package = &PackageDetails{PickupAddress: "a", DropoffAddress: "b"}
	if err := mismatched.Validate(); err == nil {
		t.Fatalf("expected variant mismatch to fail")
	}

	unknown := ServiceDetails{Type: "laundry", Title: "x"}
	if err := unknown.Validate(); err == nil {
		t.Fatalf("expected unknown type to fail")
	}

	for _, price := range []float64{-1, math.NaN(), math.Inf(1)} {
		bad := ServiceDetails{Type: ServiceTypeGrocery, Title: "Weekly shop", EstimatedPrice: price}
		if err := bad.Validate(); err == nil {
			t.Errorf("expected price %v to be rejected", price)
		}
	}
}

func TestServiceTypeOrderPrefix(t *testing.T) {
	if ServiceTypeGrocery.OrderPrefix() != "GRO" || ServiceTypeRides.OrderPrefix() != "RIDE" || ServiceTypePackage.OrderPrefix() != "PKG" {
		t.Fatalf("unexpected prefixes")
	}
}

func TestOrderIndexEntryProjection(t *testing.T) {
	order := Order{
		ID:             "GRO-1-ABCDEF01",
		OwnerID:        "user-1",
		ServiceDetails: ServiceDetails{Type: ServiceTypeGrocery, Title: "Weekly shop"},
		EstimatedPrice: 18.5,
		PaymentMethod:  PaymentMethodCard,
		PaymentStatus:  PaymentStatusProcessing,
		Status:         OrderStatusPending,
	}
	entry := order.IndexEntry()
	if entry.OrderID != order.ID || entry.ServiceType != ServiceTypeGrocery || entry.Status != OrderStatusPending {
		t.Fatalf("unexpected projection %+v", entry)
	}
	if order.IsGuest() {
		t.Fatalf("owned order reported as guest")
	}
}
