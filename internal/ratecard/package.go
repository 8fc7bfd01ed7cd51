package ratecard

import (
	"time"

	"ratecard-service/internal/pricing"
)

// Package is a submitted custom airtime package with its priced schedule.
type Package struct {
	ID          string              `json:"id"`
	RateCardID  string              `json:"rateCardId"`
	ClientName  string              `json:"clientName"`
	ClientEmail string              `json:"clientEmail"`
	Notes       string              `json:"notes,omitempty"`
	Data        pricing.PackageData `json:"package"`
	CreatedAt   time.Time           `json:"createdAt"`
}
