package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarketConfig(t *testing.T) {
	SetMarkets([]Market{
		{Name: "springfield", State: "IL", Counties: []string{"Sangamon", "Menard"}},
		{Name: "peoria", State: "IL", Counties: []string{"Peoria", "Tazewell"}},
	})

	markets := GetMarkets()
	assert.Len(t, markets, 2)

	market := GetMarketByName("springfield")
	assert.NotNil(t, market)
	assert.Equal(t, "IL", market.State)
	assert.Equal(t, []string{"Sangamon", "Menard"}, market.Counties)

	assert.Nil(t, GetMarketByName("unknown"))
}

func TestGetMarkets_ReturnsCopy(t *testing.T) {
	SetMarkets([]Market{
		{Name: "springfield", State: "IL", Counties: []string{"Sangamon"}},
	})

	markets := GetMarkets()
	markets[0].Name = "mutated"

	assert.Equal(t, "springfield", GetMarkets()[0].Name)
}
