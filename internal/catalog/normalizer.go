package catalog

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pagecraft/blocks-api/internal/domain"
)

// Field resolution is expressed as prioritized candidate lists rather than
// inline property chains so each rule stays independently testable.
var (
	tokenFields = []string{"link_token", "token", "value", "offer_token", "id"}
	labelFields = []string{"name", "offer_name", "product_name", "title", "label"}

	descriptionFields = []string{"description", "offer_description", "product_description"}

	priceCentsFields = []string{
		"price_cents", "priceCents",
		"unit_amount_cents", "unitAmountCents",
		"amount_cents", "amountCents",
	}

	currencyFields  = []string{"currency", "price_currency"}
	offerTypeFields = []string{"offer_type", "type", "kind", "offerType"}

	creditsFields = []string{
		"credits_per_cycle", "creditsPerCycle",
		"rollover_credits_per_cycle", "rolloverCreditsPerCycle",
	}

	rolloverCapFields = []string{"rollover_cap", "rolloverCap"}
)

const defaultCurrency = "USD"

// NormalizeOfferList maps loosely-typed source records into canonical offers.
// The input may be a []any of records or a map carrying an "offers" array;
// any other shape yields an empty result. Records that cannot produce both a
// non-empty token and label are dropped. This function never panics for
// JSON-serializable input.
func NormalizeOfferList(entries any) []domain.Offer {
	records := extractRecords(entries)
	if len(records) == 0 {
		return []domain.Offer{}
	}

	offers := make([]domain.Offer, 0, len(records))
	for _, rec := range records {
		offer, ok := normalizeRecord(rec)
		if !ok {
			continue
		}
		offers = append(offers, offer)
	}
	return offers
}

func extractRecords(entries any) []map[string]any {
	var list []any
	switch v := entries.(type) {
	case []any:
		list = v
	case []map[string]any:
		records := make([]map[string]any, 0, len(v))
		for _, rec := range v {
			if rec != nil {
				records = append(records, rec)
			}
		}
		return records
	case map[string]any:
		nested, ok := v["offers"].([]any)
		if !ok {
			return nil
		}
		list = nested
	default:
		return nil
	}

	records := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if rec, ok := item.(map[string]any); ok {
			records = append(records, rec)
		}
	}
	return records
}

func normalizeRecord(rec map[string]any) (domain.Offer, bool) {
	token := resolveString(rec, tokenFields)
	label := resolveString(rec, labelFields)
	if token == "" || label == "" {
		return domain.Offer{}, false
	}

	rollover, _ := rec["rollover"].(map[string]any)
	pricing, _ := rec["pricing"].(map[string]any)

	offer := domain.Offer{
		Token:       token,
		SourceID:    resolveSourceID(rec, token),
		Label:       label,
		Description: resolveDescription(rec, rollover),
		PriceCents:  resolvePriceCents(rec, pricing, rollover),
		Currency:    resolveCurrency(rec, pricing, rollover),
		OfferType:   resolveString(rec, offerTypeFields),
		RolloverCap: resolveRolloverCap(rec, rollover),
	}
	if credits, ok := resolveCredits(rec, rollover); ok {
		offer.CreditsPerCycle = &credits
	}
	return offer, true
}

// resolveSourceID records a secondary identifier when the winning token came
// from a non-id field, so selection resolution can cross-reference ids too.
func resolveSourceID(rec map[string]any, token string) string {
	id := stringValue(rec["id"])
	if id == "" || id == token {
		return ""
	}
	return id
}

func resolveDescription(rec, rollover map[string]any) string {
	if desc := resolveString(rec, descriptionFields); desc != "" {
		return desc
	}
	if rollover != nil {
		return stringValue(rollover["description"])
	}
	return ""
}

func resolvePriceCents(rec, pricing, rollover map[string]any) *int64 {
	if cents, ok := resolveNumber(rec, priceCentsFields); ok {
		return clampCents(cents)
	}
	if pricing != nil {
		if cents, ok := resolveNumber(pricing, priceCentsFields); ok {
			return clampCents(cents)
		}
	}
	if rollover != nil {
		if cents, ok := resolveNumber(rollover, []string{"unit_amount_cents", "unitAmountCents"}); ok {
			return clampCents(cents)
		}
	}
	// Bare "price" is interpreted as major units and converted to cents.
	if major, ok := numberValue(rec["price"]); ok {
		return clampCents(major * 100)
	}
	return nil
}

func clampCents(v float64) *int64 {
	cents := int64(math.Round(v))
	if cents < 0 {
		return nil
	}
	return &cents
}

func resolveCurrency(rec, pricing, rollover map[string]any) string {
	currency := resolveString(rec, currencyFields)
	if currency == "" && pricing != nil {
		currency = stringValue(pricing["currency"])
	}
	if currency == "" && rollover != nil {
		currency = stringValue(rollover["currency"])
	}
	if currency == "" {
		currency = defaultCurrency
	}
	return strings.ToUpper(currency)
}

func resolveCredits(rec, rollover map[string]any) (int64, bool) {
	if v, ok := resolveNumber(rec, creditsFields); ok {
		return int64(math.Round(v)), true
	}
	if rollover != nil {
		if v, ok := resolveNumber(rollover, []string{"credits_per_cycle", "creditsPerCycle"}); ok {
			return int64(math.Round(v)), true
		}
	}
	return 0, false
}

// resolveRolloverCap walks the candidate keys in order. A key holding a
// literal null terminates resolution with an explicit-null cap; it is not
// treated as "try the next candidate".
func resolveRolloverCap(rec, rollover map[string]any) domain.RolloverCap {
	scopes := []map[string]any{rec}
	if rollover != nil {
		scopes = append(scopes, rollover)
	}
	for _, scope := range scopes {
		for _, key := range rolloverCapFields {
			raw, present := scope[key]
			if !present {
				continue
			}
			if raw == nil {
				return domain.RolloverCapNull()
			}
			if v, ok := numberValue(raw); ok {
				return domain.RolloverCapValue(int64(math.Round(v)))
			}
		}
	}
	return domain.RolloverCap{}
}

func resolveString(rec map[string]any, keys []string) string {
	for _, key := range keys {
		if v := stringValue(rec[key]); v != "" {
			return v
		}
	}
	return ""
}

func resolveNumber(rec map[string]any, keys []string) (float64, bool) {
	for _, key := range keys {
		if v, ok := numberValue(rec[key]); ok {
			return v, true
		}
	}
	return 0, false
}

func stringValue(raw any) string {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

// numberValue parses numeric and numeric-string values. Strings are stripped
// of everything except digits and dots before parsing, so "$12.34" and
// "12,34 USD" style inputs still resolve.
func numberValue(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return finite(parsed)
	case string:
		stripped := stripNonNumeric(v)
		if stripped == "" || stripped == "." {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(stripped, 64)
		if err != nil {
			return 0, false
		}
		return finite(parsed)
	default:
		return 0, false
	}
}

func finite(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func stripNonNumeric(v string) string {
	var b strings.Builder
	for _, r := range v {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
