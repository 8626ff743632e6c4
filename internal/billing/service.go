package billing

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ServiceParams groups dependencies for the billing service.
type ServiceParams struct {
	RatePerMinute decimal.Decimal
	Currency      string
}

// Service prices the time a partner spends beyond the booked estimate.
type Service struct {
	rate     decimal.Decimal
	currency string
}

// Overage is the result of settling a finished service.
type Overage struct {
	ActualMinutes int
	ExtraMinutes  int
	ExtraAmount   decimal.Decimal
}

// NewService builds a billing service.
func NewService(params ServiceParams) (*Service, error) {
	if params.RatePerMinute.IsNegative() {
		return nil, errors.New("overage rate must not be negative")
	}
	if strings.TrimSpace(params.Currency) == "" {
		return nil, errors.New("currency is required")
	}
	return &Service{rate: params.RatePerMinute, currency: strings.ToUpper(params.Currency)}, nil
}

// Currency is the ISO code every amount is expressed in.
func (s *Service) Currency() string {
	return s.currency
}

// Rate is the per-minute overage price.
func (s *Service) Rate() decimal.Decimal {
	return s.rate
}

// Overage bills whole elapsed minutes past estimatedMinutes. Partial minutes are not charged.
func (s *Service) Overage(estimatedMinutes int, startedAt, completedAt time.Time) Overage {
	actual := 0
	if !startedAt.IsZero() && completedAt.After(startedAt) {
		actual = int(completedAt.Sub(startedAt) / time.Minute)
	}
	extra := actual - estimatedMinutes
	if extra < 0 {
		extra = 0
	}
	return Overage{
		ActualMinutes: actual,
		ExtraMinutes:  extra,
		ExtraAmount:   s.rate.Mul(decimal.NewFromInt(int64(extra))),
	}
}
