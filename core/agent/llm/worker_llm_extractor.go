package llm

import (
	"context"
	"fmt"
	"math"
	"strings"

	"leadestate_server/core/domain"
)

const extractSystemPrompt = `You extract structured property details from a home seller's email. Reply with JSON only.`

// extractedProperty accepts fractional numbers from the model.
type extractedProperty struct {
	Address          string   `json:"address"`
	City             string   `json:"city"`
	State            string   `json:"state"`
	Zip              string   `json:"zip"`
	Beds             *float64 `json:"beds"`
	Baths            *float64 `json:"baths"`
	Sqft             *float64 `json:"sqft"`
	PriceExpectation *float64 `json:"priceExpectation"`
	Condition        string   `json:"condition"`
	Timeline         string   `json:"timeline"`
}

// ExtractPropertyDetails returns only the fields the seller mentioned.
func (c *Client) ExtractPropertyDetails(ctx context.Context, body string) (domain.PropertyDetails, error) {
	if strings.TrimSpace(body) == "" {
		return domain.PropertyDetails{}, nil
	}

	prompt := fmt.Sprintf(`Extract any property details from this message. Return only fields that are explicitly mentioned. Use numbers for beds, baths, sqft, priceExpectation.

Fields: address, city, state, zip, beds, baths, sqft, priceExpectation, condition, timeline.

Message:
%s`, truncateBody(body, 4000))

	var raw extractedProperty
	if err := c.CompleteJSON(ctx, "extract_property", extractSystemPrompt, prompt, &raw); err != nil {
		return domain.PropertyDetails{}, err
	}
	return raw.details(), nil
}

func (e extractedProperty) details() domain.PropertyDetails {
	d := domain.PropertyDetails{
		Address:   strings.TrimSpace(e.Address),
		City:      strings.TrimSpace(e.City),
		State:     strings.TrimSpace(e.State),
		Zip:       strings.TrimSpace(e.Zip),
		Condition: strings.TrimSpace(e.Condition),
		Timeline:  strings.TrimSpace(e.Timeline),
	}
	if e.Beds != nil && *e.Beds > 0 {
		d.Beds = int(math.Round(*e.Beds))
	}
	if e.Baths != nil && *e.Baths > 0 {
		d.Baths = *e.Baths
	}
	if e.Sqft != nil && *e.Sqft > 0 {
		d.Sqft = int(math.Round(*e.Sqft))
	}
	if e.PriceExpectation != nil && *e.PriceExpectation > 0 {
		d.PriceExpectation = *e.PriceExpectation
	}
	return d
}
