package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Offer is the canonical catalog record produced by normalization. All source
// payload variants collapse into this shape; instances are treated as
// immutable once constructed.
type Offer struct {
	// Token uniquely identifies the offer and doubles as the selection value.
	Token string `json:"token"`
	// SourceID carries the raw record's secondary identifier when it differs
	// from Token, used as a cross-reference key during selection resolution.
	SourceID string `json:"sourceId,omitempty"`
	// Label is the human-readable display name.
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	// PriceCents is the price in minor currency units; nil when the source
	// carried no usable price.
	PriceCents *int64 `json:"priceCents,omitempty"`
	// Currency is an uppercase ISO-like code. Defaults to "USD" during
	// normalization, so it is always set on normalized records.
	Currency string `json:"currency"`
	// OfferType is a free-form classification slug. Comparisons are
	// case-insensitive; empty means unclassified.
	OfferType string `json:"offerType,omitempty"`
	// CreditsPerCycle is nil when the source carried no usable value.
	CreditsPerCycle *int64      `json:"creditsPerCycle,omitempty"`
	RolloverCap     RolloverCap `json:"rolloverCap"`
}

// MarshalJSON keeps the three cap states distinguishable on the wire: an
// absent cap drops the rolloverCap key entirely, a null cap emits null, and
// a resolved cap emits the integer.
func (o Offer) MarshalJSON() ([]byte, error) {
	type offerAlias Offer
	if !o.RolloverCap.Present() {
		return json.Marshal(struct {
			offerAlias
			RolloverCap *RolloverCap `json:"rolloverCap,omitempty"`
		}{offerAlias: offerAlias(o)})
	}
	return json.Marshal(offerAlias(o))
}

// RolloverCap models the three-valued rollover cap: absent (never resolved),
// explicitly null (unlimited/unset in the source), or a non-negative integer.
// Callers must not conflate Null with absent.
type RolloverCap struct {
	present bool
	null    bool
	value   int64
}

// RolloverCapValue builds a cap carrying a concrete integer value.
func RolloverCapValue(v int64) RolloverCap {
	return RolloverCap{present: true, value: v}
}

// RolloverCapNull builds a cap that was explicitly null in the source.
func RolloverCapNull() RolloverCap {
	return RolloverCap{present: true, null: true}
}

// Present reports whether the cap resolved at all.
func (c RolloverCap) Present() bool { return c.present }

// IsNull reports whether the source carried an explicit null.
func (c RolloverCap) IsNull() bool { return c.present && c.null }

// Value returns the integer cap and whether one is set.
func (c RolloverCap) Value() (int64, bool) {
	if !c.present || c.null {
		return 0, false
	}
	return c.value, true
}

// MarshalJSON emits the integer for a resolved cap and null otherwise.
// Absent caps are expected to be omitted by the enclosing record.
func (c RolloverCap) MarshalJSON() ([]byte, error) {
	if v, ok := c.Value(); ok {
		return strconv.AppendInt(nil, v, 10), nil
	}
	return []byte("null"), nil
}

// IsUpsell reports whether the offer type classifies as anything other than
// the default/"standard" type.
func (o Offer) IsUpsell() bool {
	t := strings.ToLower(strings.TrimSpace(o.OfferType))
	return t != "" && t != "standard"
}

// TraitOption is a UI-ready select option projected from the catalog cache.
type TraitOption struct {
	ID    string `json:"id"`
	Value string `json:"value"`
	Name  string `json:"name"`
}
