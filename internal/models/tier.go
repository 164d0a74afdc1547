// Package models holds the domain types shared by storage, services and
// the HTTP layer.
package models

// Tier is a purchasable subscription plan. Catalog entries are seeded by
// migration and never mutated at runtime. Prices are in fils (1 KWD = 1000
// fils).
type Tier struct {
	ID               string   `json:"id"`
	DisplayName      string   `json:"display_name"`
	PriceFils        int64    `json:"price_fils"`
	Currency         string   `json:"currency"`
	CreditsPerPeriod int64    `json:"credits_per_period"`
	Features         []string `json:"features"`
	Purchasable      bool     `json:"purchasable"`
}
