package database

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcelwatch/server/internal/models"
)

func strPtr(s string) *string { return &s }
func intPtr(i int64) *int64   { return &i }
func f64Ptr(f float64) *float64 { return &f }

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewTestDB()
	require.NoError(t, err)
	return &Database{db: db}
}

func seedProperty(t *testing.T, d *Database, line, county string, lat, lon *float64) int64 {
	t.Helper()
	prop := models.Property{
		AddressLine: line,
		City:        "SPRINGFIELD",
		PostalCode:  "62704",
		StateAbbr:   strPtr("IL"),
		CountyName:  &county,
		Latitude:    lat,
		Longitude:   lon,
		Status:      strPtr("for_sale"),
		FirstSeenAt: time.Now().UTC(),
		LastSeenAt:  time.Now().UTC(),
	}
	require.NoError(t, d.db.Create(&prop).Error)
	return prop.ID
}

func seedHistory(t *testing.T, d *Database, propertyID int64, field string, observedAt time.Time, previous *string, newValue string) {
	t.Helper()
	entry := models.PropertyHistory{
		PropertyID:    propertyID,
		ObservedAt:    observedAt,
		FieldName:     field,
		PreviousValue: previous,
		NewValue:      newValue,
	}
	require.NoError(t, d.db.Create(&entry).Error)
}

func TestGetProperty_NotFound(t *testing.T) {
	d := newTestDatabase(t)
	prop, err := d.GetProperty(42)
	require.NoError(t, err)
	assert.Nil(t, prop)
}

func TestGetChangedProperties_DedupAndOrder(t *testing.T) {
	d := newTestDatabase(t)
	now := time.Now().UTC().Truncate(time.Second)

	// Two qualifying history rows for one property: it appears once
	busy := seedProperty(t, d, "123 MAIN ST", "Sangamon", nil, nil)
	seedHistory(t, d, busy, "status", now.Add(-2*time.Hour), strPtr("for_sale"), "pending")
	seedHistory(t, d, busy, "list_price", now.Add(-time.Hour), strPtr("450000"), "440000")

	quiet := seedProperty(t, d, "456 OAK AVE", "Sangamon", nil, nil)
	seedHistory(t, d, quiet, "status", now.Add(-30*time.Minute), nil, "for_sale")

	// Non-qualifying field changes never show up in the feed
	other := seedProperty(t, d, "789 ELM ST", "Sangamon", nil, nil)
	seedHistory(t, d, other, "is_pending", now.Add(-time.Hour), nil, "true")

	// Changes older than the cutoff are excluded
	stale := seedProperty(t, d, "12 BIRCH RD", "Sangamon", nil, nil)
	seedHistory(t, d, stale, "status", now.Add(-48*time.Hour), nil, "for_sale")

	changed, err := d.GetChangedProperties(now.Add(-24*time.Hour), "", nil, nil)
	require.NoError(t, err)
	require.Len(t, changed, 2)

	// Most recent change first
	assert.Equal(t, quiet, changed[0].ID)
	assert.Equal(t, busy, changed[1].ID)
	assert.Contains(t, changed[1].ChangedFields, "status")
	assert.Contains(t, changed[1].ChangedFields, "list_price")
}

func TestGetChangedProperties_PriceReduced(t *testing.T) {
	d := newTestDatabase(t)
	now := time.Now().UTC().Truncate(time.Second)

	reduced := seedProperty(t, d, "123 MAIN ST", "Sangamon", nil, nil)
	seedHistory(t, d, reduced, "list_price", now.Add(-2*time.Hour), nil, "450000")
	seedHistory(t, d, reduced, "list_price", now.Add(-time.Hour), strPtr("450000"), "440000")

	raised := seedProperty(t, d, "456 OAK AVE", "Sangamon", nil, nil)
	seedHistory(t, d, raised, "list_price", now.Add(-2*time.Hour), nil, "300000")
	seedHistory(t, d, raised, "list_price", now.Add(-time.Hour), strPtr("300000"), "320000")

	// First-ever price has no previous value: not a reduction
	fresh := seedProperty(t, d, "789 ELM ST", "Sangamon", nil, nil)
	seedHistory(t, d, fresh, "list_price", now.Add(-time.Hour), nil, "250000")

	changed, err := d.GetChangedProperties(now.Add(-24*time.Hour), "", nil, nil)
	require.NoError(t, err)
	require.Len(t, changed, 3)

	byID := map[int64]models.ChangedProperty{}
	for _, c := range changed {
		byID[c.ID] = c
	}
	assert.True(t, byID[reduced].PriceReduced)
	assert.False(t, byID[raised].PriceReduced)
	assert.False(t, byID[fresh].PriceReduced)
}

func TestGetChangedProperties_Filters(t *testing.T) {
	d := newTestDatabase(t)
	now := time.Now().UTC().Truncate(time.Second)

	inCounty := seedProperty(t, d, "123 MAIN ST", "Sangamon", f64Ptr(39.78), f64Ptr(-89.65))
	seedHistory(t, d, inCounty, "status", now.Add(-time.Hour), nil, "for_sale")

	outCounty := seedProperty(t, d, "456 OAK AVE", "Cook", f64Ptr(41.88), f64Ptr(-87.63))
	seedHistory(t, d, outCounty, "status", now.Add(-time.Hour), nil, "for_sale")

	changed, err := d.GetChangedProperties(now.Add(-24*time.Hour), "IL", []string{"Sangamon"}, nil)
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, inCounty, changed[0].ID)

	// Bounding box around Springfield only
	bbox := orb.Bound{Min: orb.Point{-90, 39}, Max: orb.Point{-89, 40.5}}
	changed, err = d.GetChangedProperties(now.Add(-24*time.Hour), "", nil, &bbox)
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, inCounty, changed[0].ID)
}

func TestGetCountyStats(t *testing.T) {
	d := newTestDatabase(t)

	seedProperty(t, d, "123 MAIN ST", "Sangamon", nil, nil)

	soldDate := time.Now().UTC()
	sold := models.Property{
		AddressLine: "456 OAK AVE",
		City:        "SPRINGFIELD",
		PostalCode:  "62704",
		CountyName:  strPtr("Sangamon"),
		Status:      strPtr("sold"),
		SoldDate:    &soldDate,
		SoldPrice:   intPtr(430000),
	}
	require.NoError(t, d.db.Create(&sold).Error)

	stats, err := d.GetCountyStats()
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "Sangamon", stats[0].CountyName)
	assert.Equal(t, 2, stats[0].PropertyCount)
	assert.Equal(t, 1, stats[0].ActiveCount)
	assert.Equal(t, 1, stats[0].SoldCount)
}

func TestConflictQueue(t *testing.T) {
	d := newTestDatabase(t)

	conflict := models.BindingConflict{
		SourceName:       "mls",
		SourceListingID:  "A1",
		BoundPropertyID:  1,
		AttemptedAddress: "456 OAK AVE|SPRINGFIELD|62704",
		ObservedAt:       time.Now().UTC(),
	}
	require.NoError(t, d.db.Create(&conflict).Error)

	open, err := d.GetOpenConflicts()
	require.NoError(t, err)
	require.Len(t, open, 1)

	require.NoError(t, d.ResolveConflict(open[0].ID))

	open, err = d.GetOpenConflicts()
	require.NoError(t, err)
	assert.Empty(t, open)

	assert.Error(t, d.ResolveConflict(999))
}
