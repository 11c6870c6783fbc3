package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlag_UnmarshalVariants(t *testing.T) {
	// Sources encode booleans every way imaginable; all must decode equal
	truthy := []string{`true`, `1`, `"true"`, `"1"`}
	for _, raw := range truthy {
		var f Flag
		require.NoError(t, json.Unmarshal([]byte(raw), &f), raw)
		assert.True(t, f.Bool(), raw)
	}

	falsy := []string{`false`, `0`, `"false"`, `"0"`}
	for _, raw := range falsy {
		var f Flag
		require.NoError(t, json.Unmarshal([]byte(raw), &f), raw)
		assert.False(t, f.Bool(), raw)
	}

	var f Flag
	assert.Error(t, json.Unmarshal([]byte(`"yes"`), &f))
}

func TestFlag_MarshalsAsPlainBool(t *testing.T) {
	fields := TrackedFields{}
	require.NoError(t, json.Unmarshal([]byte(`{"is_pending": "1", "is_contingent": false}`), &fields))

	out, err := json.Marshal(fields.IsPending)
	require.NoError(t, err)
	assert.Equal(t, `true`, string(out))
}

func TestObservation_Unmarshal(t *testing.T) {
	payload := []byte(`{
		"source_name": "mls",
		"source_listing_id": "A1",
		"address": {"line": "123 Main St", "city": "Springfield", "state": "IL", "postal_code": "62704"},
		"fields": {"status": "for_sale", "list_price": 450000, "is_new_listing": "1"},
		"observed_at": "2026-08-20T14:00:00Z",
		"raw_payload": {"anything": true}
	}`)

	var obs Observation
	require.NoError(t, json.Unmarshal(payload, &obs))
	assert.Equal(t, "mls", obs.SourceName)
	require.NotNil(t, obs.Fields.ListPrice)
	assert.Equal(t, int64(450000), *obs.Fields.ListPrice)
	require.NotNil(t, obs.Fields.IsNewListing)
	assert.True(t, obs.Fields.IsNewListing.Bool())
	assert.Nil(t, obs.Fields.SoldPrice)
	assert.JSONEq(t, `{"anything": true}`, string(obs.RawPayload))
}
