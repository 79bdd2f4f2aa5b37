package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"tftrader/internal/connector"
	"tftrader/internal/controllers"
	"tftrader/internal/lifecycle"
	"tftrader/internal/repository/sqlite"
	"tftrader/internal/strategy"
	"tftrader/internal/trader"
)

// enough history to settle the slowest indicator before live bars arrive
const warmupBars = 200

func main() {
	var app App
	var confFileName, dbFileName string

	flag.StringVar(&confFileName, "config", ".env", "")
	flag.StringVar(&dbFileName, "db", "./store.db", "")
	flag.Parse()

	app.Name = "tftrader"

	if err := app.loadConfig(confFileName); err != nil {
		panic(err)
	}

	if err := app.initLoki(); err != nil {
		panic(err)
	}

	app.initLogger()

	if err := app.initTgBot(); err != nil {
		panic(err)
	}

	if err := app.InitDB(dbFileName); err != nil {
		panic(err)
	}

	app.initHTTPClient()

	chatId, err := strconv.ParseInt(app.Config.TelegramChatID, 10, 64)
	if err != nil {
		panic(err)
	}

	orderRepo := sqlite.NewOrderRepository(app.DB)
	if err := orderRepo.EnsureSchema(); err != nil {
		panic(err)
	}

	clientController := controllers.NewClientController(
		app.HTTPClient,
		app.Config.ExchangeApiKey,
		controllers.DefaultRetryConfig(),
		app.Logger,
	)
	cryptoController := controllers.NewCryptoController(
		app.Config.ExchangeSecretKey,
	)
	tgmController := controllers.NewTgmController(
		app.TGM,
		chatId,
	)
	streamController := controllers.NewStreamController(
		app.Config.ExchangeWsUrl,
		app.Logger,
	)

	conn := connector.NewBinance(
		clientController,
		cryptoController,
		streamController,
		app.Config.ExchangeUrl,
		app.Config.NativeOCO,
		app.Logger,
	)

	manager := lifecycle.NewManager(conn, orderRepo, app.Config.NegligibleQty, app.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := conn.Start(ctx); err != nil {
		panic(err)
	}

	var traders []*trader.Trader
	for _, sc := range app.Config.Symbols {
		source := strategy.NewTrendFollowing(strategy.DefaultConfig(), app.Logger)

		tr := trader.New(
			trader.Settings{
				Symbol:      sc.Symbol,
				Interval:    sc.Interval,
				Quantity:    sc.Quantity,
				TakeProfit:  sc.TakeProfit,
				StopLoss:    sc.StopLoss,
				WarmupBars:  warmupBars,
				MaxAttempts: 5,
				RetryMin:    250 * time.Millisecond,
				RetryMax:    10 * time.Second,
			},
			conn,
			manager,
			source,
			tgmController,
			app.Logger,
		)

		if err := tr.Start(ctx); err != nil {
			app.Logger.WithError(err).WithField("symbol", sc.Symbol).Error("trader start failed")
			continue
		}

		traders = append(traders, tr)
	}

	app.initFiber(conn, manager, traders)

	go func() {
		if err := app.Fiber.Listen(app.Config.ListenAddr); err != nil {
			app.Logger.WithError(err).Error("http server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info("shutting down")

	for _, tr := range traders {
		tr.Stop()
	}
	conn.Stop()
	cancel()

	_ = app.Fiber.Shutdown()
	_ = app.DB.Close()
	if app.PromTail != nil {
		app.PromTail.Close()
	}
}
