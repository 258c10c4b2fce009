package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"mvmarket-view-onchain/config"
	contractGateway "mvmarket-view-onchain/gateway/contract"
	metadataGateway "mvmarket-view-onchain/gateway/metadata"
	walletGateway "mvmarket-view-onchain/gateway/wallet"
	consoleHandler "mvmarket-view-onchain/handler/console"
	marketHandler "mvmarket-view-onchain/handler/market"
	"mvmarket-view-onchain/handler/middleware"
	"mvmarket-view-onchain/logger"
	marketUsecase "mvmarket-view-onchain/usecase/market"
)

var cfg *config.Config

func main() {
	// --- 1. 初期設定 ---
	cfg = config.Load()
	if err := logger.NewLogger(cfg.Debug, cfg.LogPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer zap.L().Sync()

	app := &cli.App{
		Name:   "mvmarket",
		Usage:  "NFT marketplace viewer",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the marketplace page and API",
				Action: serve,
			},
			{
				Name:   "listings",
				Usage:  "Print the current market listings",
				Action: listings,
			},
			{
				Name:   "buy",
				Usage:  "Buy a listed NFT with the configured wallet",
				Action: buy,
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "token-id", Usage: "Token ID to buy", Required: true},
				},
			},
			{
				Name:   "verify-tx",
				Usage:  "Check the status of a transaction",
				Action: verifyTx,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "hash", Usage: "Transaction hash", Required: true},
				},
			},
		},
	}

	exitOnError(app.Run(os.Args), os.Exit)
}

// exitOnError は失敗をログに残し、バッファを書き出してから終了する
func exitOnError(err error, exit func(int)) {
	if err == nil {
		return
	}
	zap.L().With(zap.Error(err)).Error("Command failed")
	_ = zap.L().Sync()
	exit(1)
}

// newMarket はethclientとゲートウェイを初期化してユースケースを組み立てる
func newMarket(withEvents bool) (marketUsecase.MarketUsecase, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	// --- 2. ethclientの初期化 ---
	client, err := ethclient.Dial(cfg.Chain.RpcUrl)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", cfg.Chain.RpcUrl, err)
	}
	zap.L().With(zap.String("rpc", cfg.Chain.RpcUrl)).Info("Connected to RPC node")

	closers := []func(){client.Close}
	backend := client

	// イベント購読はWebSocket接続を使う
	if withEvents && cfg.Chain.WsUrl != "" {
		wsClient, err := ethclient.Dial(cfg.Chain.WsUrl)
		if err != nil {
			// HTTP clientで一覧と購入は使用可能
			zap.L().With(zap.Error(err)).Warn("Failed to connect WebSocket for events")
		} else {
			zap.L().Info("Connected to RPC node (WebSocket for events)")
			closers = append(closers, wsClient.Close)
			backend = wsClient
		}
	}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	// --- 3. 依存性注入 ---
	ctGateway, err := contractGateway.NewMVMarketContractGateway(backend, cfg.Chain.TokenAddress, cfg.Chain.MarketAddress)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	mdGateway := metadataGateway.NewHttpMetadataGateway(metadataGateway.Options{
		Timeout:     cfg.Metadata.Timeout,
		Retries:     cfg.Metadata.Retries,
		CacheTTL:    cfg.Metadata.CacheTTL,
		IpfsGateway: cfg.Metadata.IpfsGateway,
	})

	wGateway, err := walletGateway.NewKeyWalletGateway(client, walletGateway.KeyConfig{
		PrivateKey:       cfg.Wallet.PrivateKey,
		KeystorePath:     cfg.Wallet.KeystorePath,
		KeystorePassword: cfg.Wallet.KeystorePassword,
	})
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	zap.L().With(
		zap.String("token", ctGateway.GetTokenAddress()),
		zap.String("market", ctGateway.GetMarketAddress()),
	).Info("Market contracts configured")

	return marketUsecase.NewMarketUsecase(ctGateway, mdGateway, wGateway, cfg.Metadata.Concurrency), closeAll, nil
}

func serve(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	marketUC, closeAll, err := newMarket(cfg.WatchEvents)
	if err != nil {
		return err
	}
	defer closeAll()

	// 初回の一覧取得。失敗しても画面にエラーとして出す
	if _, err := marketUC.LoadListings(ctx); err != nil {
		zap.L().With(zap.Error(err)).Warn("Initial listing load failed")
	}

	if cfg.WatchEvents {
		if err := marketUC.StartEventListener(ctx); err != nil {
			zap.L().With(zap.Error(err)).Warn("Failed to start event listener")
		}
	}

	// --- 4. ルーティングの設定 ---
	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
	if cfg.HttpBuy.Enabled {
		zap.L().Warn("HTTP purchase routes enabled. Purchases are signed with the server wallet key.")
	}
	marketHandler.NewMarketHandler(marketUC, marketHandler.BuyOptions{
		Enabled: cfg.HttpBuy.Enabled,
		Token:   cfg.HttpBuy.Token,
	}).Register(router)

	// --- 5. CORSミドルウェアの設定 ---
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CorsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
	}).Handler(router)

	// --- 6. サーバー起動 ---
	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zap.L().With(zap.Error(err)).Warn("Server shutdown failed")
		}
	}()

	zap.S().Infof("Market view starting on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("could not start server: %w", err)
	}
	zap.L().Info("Server stopped")
	return nil
}

func listings(c *cli.Context) error {
	marketUC, closeAll, err := newMarket(false)
	if err != nil {
		return err
	}
	defer closeAll()

	// 失敗時も状態 (error) を表示してから終了コードを返す
	_, loadErr := marketUC.LoadListings(c.Context)

	out, err := consoleHandler.RenderListings(marketUC.View())
	if err != nil {
		return err
	}
	fmt.Print(out)
	return loadErr
}

func buy(c *cli.Context) error {
	marketUC, closeAll, err := newMarket(false)
	if err != nil {
		return err
	}
	defer closeAll()

	if _, err := marketUC.LoadListings(c.Context); err != nil {
		return err
	}

	listing, err := marketUC.FindListing(c.Int64("token-id"))
	if err != nil {
		return err
	}

	result, err := marketUC.Purchase(c.Context, listing)
	if err != nil {
		return err
	}

	out, err := consoleHandler.RenderPurchase(result)
	if err != nil {
		return err
	}
	fmt.Println(out)

	out, err = consoleHandler.RenderListings(marketUC.View())
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func verifyTx(c *cli.Context) error {
	marketUC, closeAll, err := newMarket(false)
	if err != nil {
		return err
	}
	defer closeAll()

	verification, err := marketUC.VerifyTransaction(c.Context, c.String("hash"))
	if err != nil {
		return err
	}

	out, err := consoleHandler.RenderVerification(verification)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}
