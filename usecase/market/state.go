package usecase

import (
	"sync"
	"time"

	"mvmarket-view-onchain/model"
)

// ListingStore は一覧画面の状態を保持する。
// 一覧は読み込み完了時に配列ごと差し替え、読み込み途中の結果は保持しない。
// 読み込みには開始順の世代を振り、反映済みより古い世代の結果は捨てる
type ListingStore struct {
	mu      sync.RWMutex
	view    model.MarketView
	now     func() time.Time
	started uint64
	applied uint64
}

func NewListingStore() *ListingStore {
	return &ListingStore{
		view: model.MarketView{
			State:    model.StateNotLoaded,
			Listings: []model.MarketListing{},
		},
		now: time.Now,
	}
}

// Snapshot は現在の状態のコピーを返す
func (s *ListingStore) Snapshot() model.MarketView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view := s.view
	view.Listings = make([]model.MarketListing, len(s.view.Listings))
	copy(view.Listings, s.view.Listings)
	return view
}

// Begin は読み込みの世代を発行する
func (s *ListingStore) Begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.started++
	return s.started
}

// Replace は一覧を丸ごと差し替えて loaded にする。
// より新しい世代が反映済みなら何もせず false を返す
func (s *ListingStore) Replace(gen uint64, listings []model.MarketListing) bool {
	stored := make([]model.MarketListing, len(listings))
	copy(stored, listings)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen < s.applied {
		return false
	}
	s.applied = gen

	loadedAt := s.now()
	s.view = model.MarketView{
		State:    model.StateLoaded,
		Listings: stored,
		LoadedAt: &loadedAt,
	}
	return true
}

// Fail は読み込み失敗を記録する。前回の一覧はそのまま残す。
// より新しい世代が反映済みなら何もせず false を返す
func (s *ListingStore) Fail(gen uint64, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen < s.applied {
		return false
	}
	s.applied = gen

	s.view.State = model.StateError
	s.view.Error = err.Error()
	return true
}

// Find は現在の一覧からトークンIDで出品を探す
func (s *ListingStore) Find(tokenId int64) (model.MarketListing, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.view.Listings {
		if l.TokenId == tokenId {
			return l, true
		}
	}
	return model.MarketListing{}, false
}
