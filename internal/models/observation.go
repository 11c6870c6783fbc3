package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// RawAddress carries the address fields exactly as a source reported them.
type RawAddress struct {
	Line       string `json:"line"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	County     string `json:"county"`
}

// Flag is a tri-state boolean for scraped payloads. Sources disagree on
// encoding: true/false, 0/1 and their string forms all occur, and they must
// compare equal after decoding.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	switch s {
	case "true", "1":
		*f = true
	case "false", "0":
		*f = false
	default:
		return fmt.Errorf("invalid flag value %q", string(data))
	}
	return nil
}

func (f Flag) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(f))
}

// Bool returns the plain boolean value.
func (f Flag) Bool() bool {
	return bool(f)
}

// TrackedFields is the tracked portion of one observation. Nil means the
// source did not report the field; nil fields never overwrite known state.
type TrackedFields struct {
	Status        *string    `json:"status"`
	ListPrice     *int64     `json:"list_price"`
	SoldPrice     *int64     `json:"sold_price"`
	SoldDate      *time.Time `json:"sold_date"`
	IsPending     *Flag      `json:"is_pending"`
	IsContingent  *Flag      `json:"is_contingent"`
	IsNewListing  *Flag      `json:"is_new_listing"`
	IsForeclosure *Flag      `json:"is_foreclosure"`
	IsComingSoon  *Flag      `json:"is_coming_soon"`
}

// Observation is one scrape-time snapshot of a listing from one source, the
// engine's single unit of ingestion.
type Observation struct {
	SourceName      string          `json:"source_name" binding:"required"`
	SourceListingID string          `json:"source_listing_id" binding:"required"`
	Address         RawAddress      `json:"address"`
	Fields          TrackedFields   `json:"fields"`
	ObservedAt      time.Time       `json:"observed_at" binding:"required"`
	PageURL         string          `json:"page_url"`
	RawPayload      json.RawMessage `json:"raw_payload"`
}

// FieldDelta is one detected change for one tracked field.
type FieldDelta struct {
	Field    string  `json:"field"`
	Previous *string `json:"previous"`
	New      string  `json:"new"`
}

// IngestResult summarizes what one observation changed.
type IngestResult struct {
	PropertyID    int64    `json:"property_id"`
	Created       bool     `json:"created"`
	FieldsChanged []string `json:"fields_changed"`
	StaleFields   []string `json:"stale_fields,omitempty"`
}
