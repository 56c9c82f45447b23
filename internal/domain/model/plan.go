package model

import "time"

// Plan describes a purchasable subscription tier of the prompt marketplace.
// DurationDays == 0 means a lifetime plan.
type Plan struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	DurationDays int       `json:"duration_days"`
	Price        int64     `json:"price"` // minor units
	Currency     string    `json:"currency"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}
