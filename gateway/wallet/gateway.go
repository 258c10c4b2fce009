package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"mvmarket-view-onchain/model"
)

// WalletGateway は購入トランザクションに署名するウォレットとの接続を担当
type WalletGateway interface {
	// Connect は署名者を取得し、トランザクション送信用のオプションを返す
	Connect(ctx context.Context) (*bind.TransactOpts, error)

	// Address は接続済みウォレットのアドレスを返す (未接続なら空文字)
	Address() string
}

// ChainIDReader は署名に使うチェーンIDを返す (ethclient.Client が満たす)
type ChainIDReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

type KeyConfig struct {
	PrivateKey       string
	KeystorePath     string
	KeystorePassword string
}

// KeyWalletGateway はローカルの秘密鍵で署名する実装
type KeyWalletGateway struct {
	chain ChainIDReader
	key   *ecdsa.PrivateKey
}

// NewKeyWalletGateway は秘密鍵 (hex) またはキーストアファイルから鍵を読み込む。
// どちらも未設定の場合は未接続のウォレットを返す
func NewKeyWalletGateway(chain ChainIDReader, cfg KeyConfig) (*KeyWalletGateway, error) {
	key, err := loadKey(cfg)
	if err != nil {
		return nil, err
	}

	g := &KeyWalletGateway{chain: chain, key: key}
	if key != nil {
		zap.L().With(zap.String("address", g.Address())).Info("Wallet key loaded")
	} else {
		zap.L().Warn("No wallet key configured. Purchases are disabled.")
	}
	return g, nil
}

func loadKey(cfg KeyConfig) (*ecdsa.PrivateKey, error) {
	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("wallet: invalid private key: %w", err)
		}
		return key, nil
	}

	if cfg.KeystorePath != "" {
		keyJSON, err := os.ReadFile(cfg.KeystorePath)
		if err != nil {
			return nil, fmt.Errorf("wallet: read keystore: %w", err)
		}
		k, err := keystore.DecryptKey(keyJSON, cfg.KeystorePassword)
		if err != nil {
			return nil, fmt.Errorf("wallet: decrypt keystore: %w", err)
		}
		return k.PrivateKey, nil
	}

	return nil, nil
}

func (g *KeyWalletGateway) Address() string {
	if g.key == nil {
		return ""
	}
	return crypto.PubkeyToAddress(g.key.PublicKey).Hex()
}

// Connect はチェーンIDを取得して署名済みトランザクションを作るオプションを返す
func (g *KeyWalletGateway) Connect(ctx context.Context) (*bind.TransactOpts, error) {
	if g.key == nil {
		return nil, model.ErrWalletNotConnected
	}

	chainID, err := g.chain.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("wallet: read chain id: %w", err)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(g.key, chainID)
	if err != nil {
		return nil, fmt.Errorf("wallet: create transactor: %w", err)
	}
	opts.Context = ctx

	return opts, nil
}
