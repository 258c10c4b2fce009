package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketViewOmitsLoadedAtBeforeLoad(t *testing.T) {
	out, err := json.Marshal(MarketView{State: StateNotLoaded, Listings: []MarketListing{}})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "loaded_at")

	at := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	out, err = json.Marshal(MarketView{State: StateLoaded, Listings: []MarketListing{}, LoadedAt: &at})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"loaded_at":"2026-10-18T00:00:00Z"`)
}
