package enums

import "fmt"

// PaymentStatus tracks what has been collected for a booking.
type PaymentStatus string

const (
	PaymentStatusPending        PaymentStatus = "pending"
	PaymentStatusBaseAmountPaid PaymentStatus = "baseAmountPaid"
	PaymentStatusFullAmountPaid PaymentStatus = "fullAmountPaid"
	PaymentStatusRefunded       PaymentStatus = "refunded"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusBaseAmountPaid,
	PaymentStatusFullAmountPaid,
	PaymentStatusRefunded,
}

// String implements fmt.Stringer.
func (s PaymentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PaymentStatus.
func (s PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsPaid reports whether at least the base amount was collected.
func (s PaymentStatus) IsPaid() bool {
	return s == PaymentStatusBaseAmountPaid || s == PaymentStatusFullAmountPaid
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}

// PaymentStage identifies which amount a payment confirmation settles.
type PaymentStage string

const (
	PaymentStageBase PaymentStage = "base"
	PaymentStageFull PaymentStage = "full"
)

// IsValid reports whether the value is a known PaymentStage.
func (s PaymentStage) IsValid() bool {
	return s == PaymentStageBase || s == PaymentStageFull
}
