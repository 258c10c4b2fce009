package model

import (
	"math/big"
	"time"
)

// LoadingState は一覧画面の読み込み状態を表す
type LoadingState string

const (
	StateNotLoaded LoadingState = "not-loaded" // 未取得
	StateLoaded    LoadingState = "loaded"     // 取得済み
	StateError     LoadingState = "error"      // 直近の取得が失敗
)

// ===============================================
// スマートコントラクト関連のモデル
// ===============================================

// MarketItem はマーケットコントラクトが返す出品レコード (getMarketTokens の1要素)
type MarketItem struct {
	ItemId      *big.Int `json:"item_id"`
	NftContract string   `json:"nft_contract"`
	TokenId     *big.Int `json:"token_id"`
	Seller      string   `json:"seller"`
	Owner       string   `json:"owner"`
	Price       *big.Int `json:"price"` // Wei
	Sold        bool     `json:"sold"`
}

// TokenMetadata は tokenURI が指すオフチェーンのJSONドキュメント
type TokenMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// MarketListing は画面に表示する出品情報 (オンチェーン1件 + メタデータ1件の結合)
type MarketListing struct {
	TokenId     int64  `json:"token_id"`
	Seller      string `json:"seller"`
	Owner       string `json:"owner"`
	Price       string `json:"price"` // ETH表示用の10進文字列
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// MarketView は一覧画面の状態のスナップショット
type MarketView struct {
	State    LoadingState    `json:"state"`
	Listings []MarketListing `json:"listings"`
	Error    string          `json:"error,omitempty"`
	LoadedAt *time.Time      `json:"loaded_at,omitempty"` // 未取得なら nil
}

// PurchaseResult は購入トランザクションの確定結果
type PurchaseResult struct {
	TokenId     int64  `json:"token_id"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	GasUsed     uint64 `json:"gas_used"`
	PriceWei    string `json:"price_wei"`
}

// EventType はコントラクトイベントの種類
type EventType string

const (
	EventMarketTokenMinted EventType = "MarketTokenMinted"
)

// MarketEvent はマーケットコントラクトのイベントを表す
type MarketEvent struct {
	Type        EventType `json:"type"`
	TxHash      string    `json:"tx_hash"`
	BlockNo     uint64    `json:"block_number"`
	ItemId      uint64    `json:"item_id"`
	TokenId     uint64    `json:"token_id"`
	NftContract string    `json:"nft_contract"`
	Seller      string    `json:"seller,omitempty"`
	Owner       string    `json:"owner,omitempty"`
	Price       *big.Int  `json:"price,omitempty"`
	Sold        bool      `json:"sold"`
}

// ContractInfo は接続先コントラクトの情報
type ContractInfo struct {
	TokenAddress  string `json:"token_address"`
	MarketAddress string `json:"market_address"`
	ListingPrice  string `json:"listing_price"` // ETH
}

// TxVerification はトランザクション検証結果
type TxVerification struct {
	TxHash         string `json:"tx_hash"`
	Status         string `json:"status"` // "pending", "success", "failed"
	BlockNumber    uint64 `json:"block_number,omitempty"`
	GasUsed        uint64 `json:"gas_used,omitempty"`
	Success        bool   `json:"success"`
	IsContractCall bool   `json:"is_contract_call"`
	ValueWei       string `json:"value_wei,omitempty"`
}

// EmptyMarketMessage は出品が0件のときの表示文言
const EmptyMarketMessage = "No NFTs in marketplace"
