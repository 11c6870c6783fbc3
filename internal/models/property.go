package models

import "time"

// Property is the canonical record for one physical real-estate unit,
// deduplicated across listing sources. Tracked fields are only ever written
// by the history writer so that current state stays a projection of the
// history log.
type Property struct {
	ID int64 `json:"id" gorm:"primaryKey"`

	// Identity key, normalized. Unique per physical property.
	AddressLine string `json:"address_line" gorm:"uniqueIndex:idx_properties_identity,priority:1"`
	City        string `json:"city" gorm:"uniqueIndex:idx_properties_identity,priority:2"`
	PostalCode  string `json:"postal_code" gorm:"uniqueIndex:idx_properties_identity,priority:3"`

	// Display / secondary address components.
	DisplayLine string  `json:"display_line"`
	Unit        *string `json:"unit"`
	StateAbbr   *string `json:"state_abbr"`
	CountyName  *string `json:"county_name" gorm:"index"`

	// Optional geocode.
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	GeocodeAttempted bool     `json:"-"`

	// Tracked fields (current state).
	Status        *string    `json:"status"`
	ListPrice     *int64     `json:"list_price"`
	SoldPrice     *int64     `json:"sold_price"`
	SoldDate      *time.Time `json:"sold_date"`
	IsPending     *bool      `json:"is_pending"`
	IsContingent  *bool      `json:"is_contingent"`
	IsNewListing  *bool      `json:"is_new_listing"`
	IsForeclosure *bool      `json:"is_foreclosure"`
	IsComingSoon  *bool      `json:"is_coming_soon"`

	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at" gorm:"index"`
	CreatedAt   time.Time `json:"created_at"`
}

// PropertySource links one upstream source listing to a property. Many
// bindings may point at one property; a binding never changes which property
// it points at.
type PropertySource struct {
	ID              int64     `json:"id" gorm:"primaryKey"`
	PropertyID      int64     `json:"property_id" gorm:"index"`
	SourceName      string    `json:"source_name" gorm:"uniqueIndex:idx_sources_listing,priority:1"`
	SourceListingID string    `json:"source_listing_id" gorm:"uniqueIndex:idx_sources_listing,priority:2"`
	PageURL         string    `json:"page_url"`
	FirstSeenAt     time.Time `json:"first_seen_at"`
	LastSeenAt      time.Time `json:"last_seen_at"`
}

func (PropertySource) TableName() string {
	return "property_sources"
}

// PropertyHistory is one field-level change event. Rows are append-only and
// for a given field the previous value of each entry equals the new value of
// the chronologically preceding entry.
type PropertyHistory struct {
	ID            int64     `json:"id" gorm:"primaryKey"`
	PropertyID    int64     `json:"property_id" gorm:"index:idx_history_property_observed,priority:1"`
	ObservedAt    time.Time `json:"observed_at" gorm:"index:idx_history_property_observed,priority:2"`
	FieldName     string    `json:"field_name"`
	PreviousValue *string   `json:"previous_value"`
	NewValue      string    `json:"new_value"`
}

func (PropertyHistory) TableName() string {
	return "property_history"
}

// BindingConflict is a persisted reconciliation item: a source listing id
// that tried to bind to a different property than the one it is already
// bound to. The attempted side is stored as its normalized address key, not
// a property id: the property created for the conflicting observation rolls
// back with the ingest transaction, so an id would dangle.
// Never auto-resolved.
type BindingConflict struct {
	ID               int64     `json:"id" gorm:"primaryKey"`
	SourceName       string    `json:"source_name"`
	SourceListingID  string    `json:"source_listing_id"`
	BoundPropertyID  int64     `json:"bound_property_id"`
	AttemptedAddress string    `json:"attempted_address"`
	ObservedAt       time.Time `json:"observed_at"`
	RawPayload       string    `json:"raw_payload"`
	Resolved         bool      `json:"resolved" gorm:"index"`
	CreatedAt        time.Time `json:"created_at"`
}

// ChangedProperty is one row of the mailing feed: a property whose status or
// list price changed since a cutoff, with the derived price-reduction signal.
type ChangedProperty struct {
	Property
	LastChangeAt  time.Time `json:"last_change_at"`
	ChangedFields string    `json:"changed_fields"`
	PriceReduced  bool      `json:"price_reduced"`
}

// CountyStats is the per-county reporting aggregate.
type CountyStats struct {
	CountyName    string `json:"county_name"`
	PropertyCount int    `json:"property_count"`
	ActiveCount   int    `json:"active_count"`
	SoldCount     int    `json:"sold_count"`
}
