package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"mvmarket-view-onchain/model"
)

// ContractGateway はNFTコントラクトとマーケットコントラクトとの連携を担当
type ContractGateway interface {
	// FetchMarketItems はマーケットの出品一覧をコントラクトの順序のまま取得
	FetchMarketItems(ctx context.Context) ([]model.MarketItem, error)

	// TokenURI はトークンのメタデータURIを取得
	TokenURI(ctx context.Context, tokenId *big.Int) (string, error)

	// ListingPrice はマーケットの出品手数料 (Wei) を取得
	ListingPrice(ctx context.Context) (*big.Int, error)

	// CreateMarketSale は署名者に紐づけたマーケットコントラクトで購入トランザクションを送信
	CreateMarketSale(ctx context.Context, opts *bind.TransactOpts, tokenId *big.Int) (*types.Transaction, error)

	// WaitForConfirmation はトランザクションが1ブロック確定するまで待つ
	WaitForConfirmation(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)

	// SubscribeEvents はマーケットコントラクトのイベントを購読
	SubscribeEvents(ctx context.Context) (<-chan *model.MarketEvent, error)

	// VerifyTransaction はトランザクションを検証
	VerifyTransaction(ctx context.Context, txHash string) (*model.TxVerification, error)

	// VerifyPurchase はウォレットから送信された購入トランザクションを検証
	VerifyPurchase(ctx context.Context, txHash string, expectedWei *big.Int) (*model.TxVerification, error)

	GetTokenAddress() string
	GetMarketAddress() string
}

// Backend は ethclient.Client が満たすRPCの範囲
type Backend interface {
	bind.ContractBackend
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// MVMarketContractGateway はMVMarketとNFTコントラクトとの連携実装
type MVMarketContractGateway struct {
	client        Backend
	tokenAddress  common.Address
	marketAddress common.Address
	tokenABI      abi.ABI
	marketABI     abi.ABI
}

// marketToken は getMarketTokens の戻り値 (struct MVMarket.MarketToken) に対応
type marketToken struct {
	ItemId      *big.Int
	NftContract common.Address
	TokenId     *big.Int
	Seller      common.Address
	Owner       common.Address
	Price       *big.Int
	Sold        bool
}

// NewMVMarketContractGateway は新しいコントラクトゲートウェイを作成
func NewMVMarketContractGateway(client Backend, tokenAddr string, marketAddr string) (*MVMarketContractGateway, error) {
	if !common.IsHexAddress(tokenAddr) {
		return nil, fmt.Errorf("invalid token contract address %q", tokenAddr)
	}
	if !common.IsHexAddress(marketAddr) {
		return nil, fmt.Errorf("invalid market contract address %q", marketAddr)
	}

	tokenABI, err := abi.JSON(strings.NewReader(NFTABI))
	if err != nil {
		return nil, fmt.Errorf("parse NFT ABI: %w", err)
	}
	marketABI, err := abi.JSON(strings.NewReader(MVMarketABI))
	if err != nil {
		return nil, fmt.Errorf("parse MVMarket ABI: %w", err)
	}

	g := &MVMarketContractGateway{
		client:        client,
		tokenAddress:  common.HexToAddress(tokenAddr),
		marketAddress: common.HexToAddress(marketAddr),
		tokenABI:      tokenABI,
		marketABI:     marketABI,
	}

	zap.L().With(
		zap.String("token", g.tokenAddress.Hex()),
		zap.String("market", g.marketAddress.Hex()),
	).Info("Contract gateway initialized")

	// ゼロアドレスは設定ミスの可能性が高い
	if g.tokenAddress == (common.Address{}) || g.marketAddress == (common.Address{}) {
		zap.L().Warn("Contract address appears to be zero address")
	}

	return g, nil
}

func (g *MVMarketContractGateway) GetTokenAddress() string {
	return g.tokenAddress.Hex()
}

func (g *MVMarketContractGateway) GetMarketAddress() string {
	return g.marketAddress.Hex()
}

// call は view 関数を呼び出して戻り値をデコードする
func (g *MVMarketContractGateway) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{
		To:   &to,
		Data: data,
	}

	result, err := g.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	out, err := contractABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return out, nil
}

// FetchMarketItems はマーケットコントラクトから出品一覧を取得
func (g *MVMarketContractGateway) FetchMarketItems(ctx context.Context) ([]model.MarketItem, error) {
	out, err := g.call(ctx, g.marketAddress, g.marketABI, "getMarketTokens")
	if err != nil {
		return nil, err
	}

	tokens := *abi.ConvertType(out[0], new([]marketToken)).(*[]marketToken)

	items := make([]model.MarketItem, 0, len(tokens))
	for _, t := range tokens {
		items = append(items, model.MarketItem{
			ItemId:      t.ItemId,
			NftContract: t.NftContract.Hex(),
			TokenId:     t.TokenId,
			Seller:      t.Seller.Hex(),
			Owner:       t.Owner.Hex(),
			Price:       t.Price,
			Sold:        t.Sold,
		})
	}

	zap.L().With(zap.Int("count", len(items))).Debug("Fetched market items")
	return items, nil
}

// TokenURI はNFTコントラクトからメタデータURIを取得
func (g *MVMarketContractGateway) TokenURI(ctx context.Context, tokenId *big.Int) (string, error) {
	out, err := g.call(ctx, g.tokenAddress, g.tokenABI, "tokenURI", tokenId)
	if err != nil {
		return "", err
	}

	uri, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected tokenURI result type %T", out[0])
	}
	return uri, nil
}

// ListingPrice はマーケットの出品手数料を取得
func (g *MVMarketContractGateway) ListingPrice(ctx context.Context) (*big.Int, error) {
	out, err := g.call(ctx, g.marketAddress, g.marketABI, "getListingPrice")
	if err != nil {
		return nil, err
	}

	price, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getListingPrice result type %T", out[0])
	}
	return price, nil
}

// CreateMarketSale は createMarketSale(nftContract, itemId) を opts.Value 付きで送信
func (g *MVMarketContractGateway) CreateMarketSale(ctx context.Context, opts *bind.TransactOpts, tokenId *big.Int) (*types.Transaction, error) {
	market := bind.NewBoundContract(g.marketAddress, g.marketABI, g.client, g.client, g.client)

	txOpts := *opts
	txOpts.Context = ctx

	tx, err := market.Transact(&txOpts, "createMarketSale", g.tokenAddress, tokenId)
	if err != nil {
		return nil, fmt.Errorf("send createMarketSale: %w", err)
	}

	zap.L().With(
		zap.String("txHash", tx.Hash().Hex()),
		zap.String("tokenId", tokenId.String()),
		zap.String("valueWei", tx.Value().String()),
	).Info("Market sale submitted")
	return tx, nil
}

// WaitForConfirmation はトランザクションのレシートを待つ。revert は ErrTransactionReverted
func (g *MVMarketContractGateway) WaitForConfirmation(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, g.client, tx)
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", tx.Hash().Hex(), err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s", model.ErrTransactionReverted, tx.Hash().Hex())
	}
	return receipt, nil
}

// SubscribeEvents はMarketTokenMintedイベントをWebSocket経由で購読
func (g *MVMarketContractGateway) SubscribeEvents(ctx context.Context) (<-chan *model.MarketEvent, error) {
	eventChan := make(chan *model.MarketEvent, 100)

	query := ethereum.FilterQuery{
		Addresses: []common.Address{g.marketAddress},
		Topics:    [][]common.Hash{{g.marketABI.Events["MarketTokenMinted"].ID}},
	}

	logs := make(chan types.Log)
	sub, err := g.client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, fmt.Errorf("subscribe market events: %w", err)
	}
	zap.L().With(zap.String("market", g.marketAddress.Hex())).Info("Subscribed to market events")

	go func() {
		defer close(eventChan)
		defer sub.Unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				zap.L().With(zap.Error(err)).Warn("Market event subscription closed")
				return
			case vLog := <-logs:
				event, err := g.parseLog(vLog)
				if err != nil {
					zap.L().With(zap.Error(err), zap.String("txHash", vLog.TxHash.Hex())).Warn("Failed to parse market event")
					continue
				}
				select {
				case eventChan <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return eventChan, nil
}

// parseLog はログをMarketEventに変換
func (g *MVMarketContractGateway) parseLog(vLog types.Log) (*model.MarketEvent, error) {
	minted := g.marketABI.Events["MarketTokenMinted"]
	if len(vLog.Topics) == 0 || vLog.Topics[0] != minted.ID {
		return nil, errors.New("unknown event signature")
	}

	event := &model.MarketEvent{
		Type:    model.EventMarketTokenMinted,
		TxHash:  vLog.TxHash.Hex(),
		BlockNo: vLog.BlockNumber,
	}

	// indexed: itemId, nftContract, tokenId
	if len(vLog.Topics) >= 4 {
		event.ItemId = new(big.Int).SetBytes(vLog.Topics[1].Bytes()).Uint64()
		event.NftContract = common.BytesToAddress(vLog.Topics[2].Bytes()).Hex()
		event.TokenId = new(big.Int).SetBytes(vLog.Topics[3].Bytes()).Uint64()
	}

	// non-indexed データをデコード
	data := make(map[string]interface{})
	if err := g.marketABI.UnpackIntoMap(data, "MarketTokenMinted", vLog.Data); err != nil {
		return nil, fmt.Errorf("unpack MarketTokenMinted: %w", err)
	}

	if seller, ok := data["seller"].(common.Address); ok {
		event.Seller = seller.Hex()
	}
	if owner, ok := data["owner"].(common.Address); ok {
		event.Owner = owner.Hex()
	}
	if price, ok := data["price"].(*big.Int); ok {
		event.Price = price
	}
	if sold, ok := data["sold"].(bool); ok {
		event.Sold = sold
	}

	return event, nil
}

func parseTxHash(txHash string) (common.Hash, error) {
	txHashObj := common.HexToHash(txHash)
	if txHashObj == (common.Hash{}) {
		return common.Hash{}, model.ErrInvalidTxHash
	}
	return txHashObj, nil
}

// VerifyTransaction はトランザクションを検証
func (g *MVMarketContractGateway) VerifyTransaction(ctx context.Context, txHash string) (*model.TxVerification, error) {
	txHashObj, err := parseTxHash(txHash)
	if err != nil {
		return nil, err
	}

	tx, isPending, err := g.client.TransactionByHash(ctx, txHashObj)
	if err != nil {
		return nil, fmt.Errorf("transaction not found: %w", err)
	}

	if isPending {
		return &model.TxVerification{
			TxHash:  txHash,
			Status:  "pending",
			Success: false,
		}, nil
	}

	receipt, err := g.client.TransactionReceipt(ctx, txHashObj)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
	}

	verification := &model.TxVerification{
		TxHash:      txHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
		Success:     receipt.Status == types.ReceiptStatusSuccessful,
		ValueWei:    tx.Value().String(),
	}

	if verification.Success {
		verification.Status = "success"
	} else {
		verification.Status = "failed"
	}

	// マーケットコントラクト呼び出しかどうかを確認
	if tx.To() != nil && *tx.To() == g.marketAddress {
		verification.IsContractCall = true
	}

	return verification, nil
}

// VerifyPurchase は購入トランザクションが成功し、マーケット宛てに期待額以上を送金しているかを検証
func (g *MVMarketContractGateway) VerifyPurchase(ctx context.Context, txHash string, expectedWei *big.Int) (*model.TxVerification, error) {
	verification, err := g.VerifyTransaction(ctx, txHash)
	if err != nil {
		return nil, err
	}

	switch {
	case verification.Status == "pending":
		return verification, model.ErrTransactionPending
	case !verification.Success:
		return verification, fmt.Errorf("%w: %s", model.ErrTransactionReverted, txHash)
	case !verification.IsContractCall:
		return verification, errors.New("transaction was not sent to the market contract")
	}

	value, ok := new(big.Int).SetString(verification.ValueWei, 10)
	if !ok || value.Cmp(expectedWei) < 0 {
		zap.L().With(
			zap.String("txHash", txHash),
			zap.String("got", verification.ValueWei),
			zap.String("expected", expectedWei.String()),
		).Warn("Insufficient purchase payment")
		return verification, errors.New("insufficient payment amount")
	}

	return verification, nil
}
