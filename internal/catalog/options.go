package catalog

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/pagecraft/blocks-api/internal/domain"
)

const (
	placeholderLoading = "Loading offers..."
	placeholderEmpty   = "No offers available"
	placeholderSelect  = "Select an offer"
)

// offerTypeLabels maps known type slugs to display labels. Slugs without an
// entry fall back to generic title-casing of their words.
var offerTypeLabels = map[string]string{
	"rollover_credits": "Credit Upsell",
	"rollover-upsell":  "Rollover Upsell",
	"upsell":           "Upsell",
}

var slugTitleCaser = cases.Title(language.English)

// TraitOptionsFor projects the cache state into a UI-ready option list.
// Before the first load it yields a single loading placeholder; a loaded but
// empty cache yields a single none-available placeholder; otherwise a leading
// select-one placeholder is followed by one option per offer in source order.
func TraitOptionsFor(offers []domain.Offer, loaded bool) []domain.TraitOption {
	if len(offers) == 0 {
		name := placeholderLoading
		if loaded {
			name = placeholderEmpty
		}
		return []domain.TraitOption{{ID: "", Value: "", Name: name}}
	}

	options := make([]domain.TraitOption, 0, len(offers)+1)
	options = append(options, domain.TraitOption{ID: "", Value: "", Name: placeholderSelect})
	for _, offer := range offers {
		options = append(options, domain.TraitOption{
			ID:    offer.Token,
			Value: offer.Token,
			Name:  optionName(offer),
		})
	}
	return options
}

func optionName(offer domain.Offer) string {
	name := offer.Label
	if offer.PriceCents != nil {
		name = fmt.Sprintf("%s (%s)", name, FormatPrice(*offer.PriceCents, offer.Currency))
	}
	if offer.IsUpsell() {
		name = fmt.Sprintf("%s (%s)", name, OfferTypeLabel(offer.OfferType))
	}
	return name
}

// OfferTypeLabel renders a type slug as a human-readable label, preferring
// the explicit table over generic title-casing.
func OfferTypeLabel(slug string) string {
	key := strings.ToLower(strings.TrimSpace(slug))
	if key == "" {
		return ""
	}
	if label, ok := offerTypeLabels[key]; ok {
		return label
	}
	words := strings.FieldsFunc(key, func(r rune) bool {
		return r == '-' || r == '_'
	})
	for i, word := range words {
		words[i] = slugTitleCaser.String(word)
	}
	return strings.Join(words, " ")
}

// FormatPrice renders minor currency units for display, e.g. 2999/USD as
// "$29.99" and 2999/EUR as "29.99 EUR".
func FormatPrice(cents int64, currency string) string {
	major := float64(cents) / 100
	if strings.EqualFold(strings.TrimSpace(currency), "USD") {
		return fmt.Sprintf("$%.2f", major)
	}
	return fmt.Sprintf("%.2f %s", major, strings.ToUpper(strings.TrimSpace(currency)))
}
