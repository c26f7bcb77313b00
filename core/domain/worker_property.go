package domain

import (
	"fmt"
	"strings"
	"time"
)

// PropertySource tells listings apart from seller inquiries.
type PropertySource string

const (
	PropertySourceListing       PropertySource = "listing"
	PropertySourceSellerInquiry PropertySource = "seller_inquiry"
)

// Property is a listing or a seller's home.
type Property struct {
	ID               string
	Source           PropertySource
	Status           string
	ContactID        string
	Address          string
	City             string
	State            string
	Zip              string
	Price            float64
	PriceExpectation float64
	Beds             int
	Baths            float64
	Sqft             int
	Condition        string
	Timeline         string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Summary renders a one-line description used as reply context.
func (p *Property) Summary() string {
	location := p.Address
	if location == "" {
		location = p.City
	}
	if location == "" {
		location = "Unlisted address"
	}

	price := p.Price
	if price == 0 {
		price = p.PriceExpectation
	}

	parts := []string{location}
	if price > 0 {
		parts = append(parts, fmt.Sprintf("$%.0f", price))
	}
	if p.Beds > 0 {
		parts = append(parts, fmt.Sprintf("%d bd", p.Beds))
	}
	if p.Baths > 0 {
		parts = append(parts, fmt.Sprintf("%g ba", p.Baths))
	}
	return strings.Join(parts, ", ")
}

// PropertyDetails is what the oracle extracts from a seller's email.
type PropertyDetails struct {
	Address          string  `json:"address,omitempty"`
	City             string  `json:"city,omitempty"`
	State            string  `json:"state,omitempty"`
	Zip              string  `json:"zip,omitempty"`
	Beds             int     `json:"beds,omitempty"`
	Baths            float64 `json:"baths,omitempty"`
	Sqft             int     `json:"sqft,omitempty"`
	PriceExpectation float64 `json:"priceExpectation,omitempty"`
	Condition        string  `json:"condition,omitempty"`
	Timeline         string  `json:"timeline,omitempty"`
}

// IsEmpty reports whether nothing was extracted.
func (d PropertyDetails) IsEmpty() bool {
	return d == PropertyDetails{}
}

// PropertyCriteria narrows listing lookups. Zero values are ignored.
type PropertyCriteria struct {
	City     string
	MinBeds  int
	MaxPrice float64
	Limit    int
}
