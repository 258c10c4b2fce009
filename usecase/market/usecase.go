package usecase

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mvmarket-view-onchain/gateway/contract"
	"mvmarket-view-onchain/gateway/metadata"
	"mvmarket-view-onchain/gateway/wallet"
	"mvmarket-view-onchain/model"
)

// MarketUsecase はマーケット一覧の取得と購入のビジネスロジック
type MarketUsecase interface {
	// LoadListings はオンチェーンの出品とメタデータを結合して一覧を作り直す
	LoadListings(ctx context.Context) ([]model.MarketListing, error)

	// View は一覧画面の状態を返す
	View() model.MarketView

	// FindListing は現在の一覧から出品を探す
	FindListing(tokenId int64) (model.MarketListing, error)

	// Purchase は出品を購入し、確定後に一覧を再取得する
	Purchase(ctx context.Context, listing model.MarketListing) (*model.PurchaseResult, error)

	// StartEventListener は新規出品イベントで一覧を再取得する
	StartEventListener(ctx context.Context) error

	// ContractInfo はコントラクトのアドレスと出品手数料を返す
	ContractInfo(ctx context.Context) (*model.ContractInfo, error)

	// VerifyTransaction はトランザクションを検証
	VerifyTransaction(ctx context.Context, txHash string) (*model.TxVerification, error)

	// VerifyPurchase はウォレット側で送信された購入トランザクションを出品価格と照合
	VerifyPurchase(ctx context.Context, txHash string, tokenId int64) (*model.TxVerification, error)
}

type marketUsecase struct {
	contract    contract.ContractGateway
	metadata    metadata.MetadataGateway
	wallet      wallet.WalletGateway
	store       *ListingStore
	concurrency int
}

// NewMarketUsecase は concurrency が0以下ならメタデータ取得の同時実行数を制限しない
func NewMarketUsecase(ct contract.ContractGateway, md metadata.MetadataGateway, w wallet.WalletGateway, concurrency int) *marketUsecase {
	return &marketUsecase{
		contract:    ct,
		metadata:    md,
		wallet:      w,
		store:       NewListingStore(),
		concurrency: concurrency,
	}
}

// LoadListings は全件のメタデータを並行に取得し、すべて揃った時点で一覧を差し替える。
// 1件でも失敗すれば全体が失敗し、途中結果は反映しない。
// 後から開始した読み込みが先に反映されていれば、この結果は捨てる
func (uc *marketUsecase) LoadListings(ctx context.Context) ([]model.MarketListing, error) {
	gen := uc.store.Begin()

	items, err := uc.contract.FetchMarketItems(ctx)
	if err != nil {
		err = fmt.Errorf("fetch market items: %w", err)
		uc.fail(gen, err)
		return nil, err
	}

	listings := make([]model.MarketListing, len(items))

	g, gctx := errgroup.WithContext(ctx)
	if uc.concurrency > 0 {
		g.SetLimit(uc.concurrency)
	}
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			listing, err := uc.resolveListing(gctx, item)
			if err != nil {
				return fmt.Errorf("token %s: %w", item.TokenId, err)
			}
			listings[i] = listing
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		uc.fail(gen, err)
		return nil, err
	}

	if !uc.store.Replace(gen, listings) {
		zap.L().With(zap.Uint64("generation", gen)).Debug("Discarded stale market listings")
		return uc.store.Snapshot().Listings, nil
	}
	zap.L().With(zap.Int("count", len(listings))).Info("Market listings loaded")

	return uc.store.Snapshot().Listings, nil
}

// resolveListing はオンチェーンの1件とメタデータ1件を結合する
func (uc *marketUsecase) resolveListing(ctx context.Context, item model.MarketItem) (model.MarketListing, error) {
	if item.TokenId == nil || !item.TokenId.IsInt64() {
		return model.MarketListing{}, fmt.Errorf("token id %v out of range", item.TokenId)
	}

	uri, err := uc.contract.TokenURI(ctx, item.TokenId)
	if err != nil {
		return model.MarketListing{}, err
	}

	md, err := uc.metadata.FetchMetadata(ctx, uri)
	if err != nil {
		return model.MarketListing{}, err
	}

	return model.MarketListing{
		TokenId:     item.TokenId.Int64(),
		Seller:      item.Seller,
		Owner:       item.Owner,
		Price:       model.FormatEther(item.Price),
		Name:        md.Name,
		Description: md.Description,
		Image:       uc.metadata.ResolveURI(md.Image),
	}, nil
}

func (uc *marketUsecase) fail(gen uint64, err error) {
	zap.L().With(zap.Error(err)).Error("Failed to load market listings")
	uc.store.Fail(gen, err)
}

func (uc *marketUsecase) View() model.MarketView {
	return uc.store.Snapshot()
}

func (uc *marketUsecase) FindListing(tokenId int64) (model.MarketListing, error) {
	listing, ok := uc.store.Find(tokenId)
	if !ok {
		return model.MarketListing{}, fmt.Errorf("%w: token %d", model.ErrListingNotFound, tokenId)
	}
	return listing, nil
}

// Purchase はウォレットに接続し、表示価格を Wei に戻して createMarketSale を1回だけ送信する。
// 1ブロックの確定を待ってから一覧を再取得する
func (uc *marketUsecase) Purchase(ctx context.Context, listing model.MarketListing) (*model.PurchaseResult, error) {
	log := zap.L().With(zap.Int64("tokenId", listing.TokenId), zap.String("price", listing.Price))

	opts, err := uc.wallet.Connect(ctx)
	if err != nil {
		log.With(zap.Error(err)).Warn("Wallet connection failed")
		return nil, err
	}

	price, err := model.ParseEther(listing.Price)
	if err != nil {
		return nil, err
	}
	opts.Value = price

	tx, err := uc.contract.CreateMarketSale(ctx, opts, big.NewInt(listing.TokenId))
	if err != nil {
		log.With(zap.Error(err)).Error("Failed to submit market sale")
		return nil, err
	}

	receipt, err := uc.contract.WaitForConfirmation(ctx, tx)
	if err != nil {
		log.With(zap.Error(err), zap.String("txHash", tx.Hash().Hex())).Error("Market sale not confirmed")
		return nil, err
	}

	result := &model.PurchaseResult{
		TokenId:  listing.TokenId,
		TxHash:   tx.Hash().Hex(),
		GasUsed:  receipt.GasUsed,
		PriceWei: price.String(),
	}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}
	log.With(zap.String("txHash", result.TxHash), zap.Uint64("block", result.BlockNumber)).Info("Market sale confirmed")

	// 購入自体は確定しているので、再取得の失敗は一覧の状態にだけ反映する
	if _, err := uc.LoadListings(ctx); err != nil {
		log.With(zap.Error(err)).Warn("Reload after purchase failed")
	}

	return result, nil
}

// StartEventListener はイベントを購読し、受信のたびに一覧を再取得する
func (uc *marketUsecase) StartEventListener(ctx context.Context) error {
	events, err := uc.contract.SubscribeEvents(ctx)
	if err != nil {
		return err
	}

	go func() {
		for event := range events {
			zap.L().With(
				zap.String("type", string(event.Type)),
				zap.Uint64("tokenId", event.TokenId),
				zap.String("txHash", event.TxHash),
			).Info("Received market event")

			if _, err := uc.LoadListings(ctx); err != nil {
				zap.L().With(zap.Error(err)).Warn("Reload after market event failed")
			}
		}
	}()

	zap.L().Info("Market event listener started")
	return nil
}

func (uc *marketUsecase) ContractInfo(ctx context.Context) (*model.ContractInfo, error) {
	price, err := uc.contract.ListingPrice(ctx)
	if err != nil {
		return nil, err
	}

	return &model.ContractInfo{
		TokenAddress:  uc.contract.GetTokenAddress(),
		MarketAddress: uc.contract.GetMarketAddress(),
		ListingPrice:  model.FormatEther(price),
	}, nil
}

func (uc *marketUsecase) VerifyTransaction(ctx context.Context, txHash string) (*model.TxVerification, error) {
	return uc.contract.VerifyTransaction(ctx, txHash)
}

func (uc *marketUsecase) VerifyPurchase(ctx context.Context, txHash string, tokenId int64) (*model.TxVerification, error) {
	listing, err := uc.FindListing(tokenId)
	if err != nil {
		return nil, err
	}

	expected, err := model.ParseEther(listing.Price)
	if err != nil {
		return nil, err
	}

	verification, err := uc.contract.VerifyPurchase(ctx, txHash, expected)
	if err != nil {
		return verification, err
	}

	if _, err := uc.LoadListings(ctx); err != nil {
		zap.L().With(zap.Error(err)).Warn("Reload after verified purchase failed")
	}
	return verification, nil
}
