package services

import "errors"

var (
	// ErrOrderInvalidInput indicates the order request failed validation.
	ErrOrderInvalidInput = errors.New("orders: invalid input")
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = errors.New("orders: not found")
	// ErrOrderConflict indicates a generated order ID collided with an existing record.
	ErrOrderConflict = errors.New("orders: id conflict")
	// ErrOrderPersistence indicates the primary store rejected or failed a write.
	ErrOrderPersistence = errors.New("orders: persistence failed")

	// ErrCheckoutInvalidInput indicates the checkout request failed validation.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutSessionExists indicates the order is already bound to a checkout session.
	ErrCheckoutSessionExists = errors.New("checkout: session already exists")
	// ErrCheckoutGatewayFailed indicates the processor could not create the session.
	ErrCheckoutGatewayFailed = errors.New("checkout: gateway failed")
	// ErrCheckoutPersistence indicates the session was created but could not be recorded.
	ErrCheckoutPersistence = errors.New("checkout: persistence failed")

	// ErrVerifyInvalidInput indicates a missing session or order ID.
	ErrVerifyInvalidInput = errors.New("payments: invalid verification input")
	// ErrPaymentNotCompleted indicates the processor does not recognise the session.
	ErrPaymentNotCompleted = errors.New("payments: payment not completed")
	// ErrSessionMismatch indicates the paid session belongs to a different order.
	ErrSessionMismatch = errors.New("payments: session does not match order")
	// ErrVerifyGatewayFailed indicates the processor could not be queried.
	ErrVerifyGatewayFailed = errors.New("payments: gateway failed")
	// ErrPaymentConflict indicates the order is in a payment state that cannot become paid.
	ErrPaymentConflict = errors.New("payments: order cannot be confirmed")

	// ErrServiceMisconfigured indicates a required collaborator was never initialised.
	ErrServiceMisconfigured = errors.New("service misconfigured")
)
