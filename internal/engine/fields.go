package engine

import (
	"strconv"
	"time"

	"parcelwatch/server/internal/models"
)

// Canonical string encodings for history values. Every tracked value is
// compared and persisted in this encoding so that semantically equal inputs
// ("1" vs true) cannot produce phantom deltas.

func encodeInt(v *int64) *string {
	if v == nil {
		return nil
	}
	s := strconv.FormatInt(*v, 10)
	return &s
}

func encodeBool(v *bool) *string {
	if v == nil {
		return nil
	}
	s := strconv.FormatBool(*v)
	return &s
}

func encodeFlag(v *models.Flag) *string {
	if v == nil {
		return nil
	}
	s := strconv.FormatBool(v.Bool())
	return &s
}

func encodeTime(v *time.Time) *string {
	if v == nil {
		return nil
	}
	s := v.UTC().Format(time.RFC3339)
	return &s
}

func encodeString(v *string) *string {
	return v
}

// fieldSpec describes one tracked field: how to read its encoded value from
// current state and from an incoming observation, and how to produce the
// typed column value the writer applies.
type fieldSpec struct {
	name     string
	column   string
	current  func(p *models.Property) *string
	incoming func(f *models.TrackedFields) *string
	value    func(f *models.TrackedFields) interface{}
}

func flagValue(v *models.Flag) interface{} {
	if v == nil {
		return nil
	}
	return v.Bool()
}

// trackedFields is the canonical field order. Deltas are always emitted in
// this order so tests and downstream consumers get reproducible output.
var trackedFields = []fieldSpec{
	{
		name:     "status",
		column:   "status",
		current:  func(p *models.Property) *string { return encodeString(p.Status) },
		incoming: func(f *models.TrackedFields) *string { return encodeString(f.Status) },
		value:    func(f *models.TrackedFields) interface{} { return f.Status },
	},
	{
		name:     "list_price",
		column:   "list_price",
		current:  func(p *models.Property) *string { return encodeInt(p.ListPrice) },
		incoming: func(f *models.TrackedFields) *string { return encodeInt(f.ListPrice) },
		value:    func(f *models.TrackedFields) interface{} { return f.ListPrice },
	},
	{
		name:     "sold_price",
		column:   "sold_price",
		current:  func(p *models.Property) *string { return encodeInt(p.SoldPrice) },
		incoming: func(f *models.TrackedFields) *string { return encodeInt(f.SoldPrice) },
		value:    func(f *models.TrackedFields) interface{} { return f.SoldPrice },
	},
	{
		name:     "sold_date",
		column:   "sold_date",
		current:  func(p *models.Property) *string { return encodeTime(p.SoldDate) },
		incoming: func(f *models.TrackedFields) *string { return encodeTime(f.SoldDate) },
		value:    func(f *models.TrackedFields) interface{} { return f.SoldDate },
	},
	{
		name:     "is_pending",
		column:   "is_pending",
		current:  func(p *models.Property) *string { return encodeBool(p.IsPending) },
		incoming: func(f *models.TrackedFields) *string { return encodeFlag(f.IsPending) },
		value:    func(f *models.TrackedFields) interface{} { return flagValue(f.IsPending) },
	},
	{
		name:     "is_contingent",
		column:   "is_contingent",
		current:  func(p *models.Property) *string { return encodeBool(p.IsContingent) },
		incoming: func(f *models.TrackedFields) *string { return encodeFlag(f.IsContingent) },
		value:    func(f *models.TrackedFields) interface{} { return flagValue(f.IsContingent) },
	},
	{
		name:     "is_new_listing",
		column:   "is_new_listing",
		current:  func(p *models.Property) *string { return encodeBool(p.IsNewListing) },
		incoming: func(f *models.TrackedFields) *string { return encodeFlag(f.IsNewListing) },
		value:    func(f *models.TrackedFields) interface{} { return flagValue(f.IsNewListing) },
	},
	{
		name:     "is_foreclosure",
		column:   "is_foreclosure",
		current:  func(p *models.Property) *string { return encodeBool(p.IsForeclosure) },
		incoming: func(f *models.TrackedFields) *string { return encodeFlag(f.IsForeclosure) },
		value:    func(f *models.TrackedFields) interface{} { return flagValue(f.IsForeclosure) },
	},
	{
		name:     "is_coming_soon",
		column:   "is_coming_soon",
		current:  func(p *models.Property) *string { return encodeBool(p.IsComingSoon) },
		incoming: func(f *models.TrackedFields) *string { return encodeFlag(f.IsComingSoon) },
		value:    func(f *models.TrackedFields) interface{} { return flagValue(f.IsComingSoon) },
	},
}

func fieldByName(name string) *fieldSpec {
	for i := range trackedFields {
		if trackedFields[i].name == name {
			return &trackedFields[i]
		}
	}
	return nil
}
