package usecase

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mvmarket-view-onchain/model"
)

func listingsOf(ids ...int64) []model.MarketListing {
	out := make([]model.MarketListing, len(ids))
	for i, id := range ids {
		out[i] = model.MarketListing{TokenId: id}
	}
	return out
}

func TestListingStoreDropsStaleReplace(t *testing.T) {
	s := NewListingStore()
	older := s.Begin()
	newer := s.Begin()

	require.True(t, s.Replace(newer, listingsOf(1)))
	assert.False(t, s.Replace(older, listingsOf(1, 2)))

	view := s.Snapshot()
	assert.Equal(t, model.StateLoaded, view.State)
	assert.Len(t, view.Listings, 1)
}

func TestListingStoreDropsStaleFailure(t *testing.T) {
	s := NewListingStore()
	older := s.Begin()
	newer := s.Begin()

	require.True(t, s.Replace(newer, listingsOf(1)))
	assert.False(t, s.Fail(older, errors.New("rpc timeout")))

	view := s.Snapshot()
	assert.Equal(t, model.StateLoaded, view.State)
	assert.Empty(t, view.Error)
}

func TestListingStoreFailKeepsListings(t *testing.T) {
	s := NewListingStore()
	require.True(t, s.Replace(s.Begin(), listingsOf(1, 2)))
	require.True(t, s.Fail(s.Begin(), errors.New("rpc timeout")))

	view := s.Snapshot()
	assert.Equal(t, model.StateError, view.State)
	assert.Equal(t, "rpc timeout", view.Error)
	assert.Len(t, view.Listings, 2)
}

func TestListingStoreCopiesOnReplace(t *testing.T) {
	s := NewListingStore()
	in := listingsOf(1)
	require.True(t, s.Replace(s.Begin(), in))
	in[0].TokenId = 9

	_, ok := s.Find(1)
	assert.True(t, ok)
}
