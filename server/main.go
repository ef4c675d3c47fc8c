// Command server runs the Pyth USD token service: a mint/burn engine priced
// by a Pyth oracle, exposed over a JSON API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"

	nhttp "net/http"

	pythusd "github.com/chewyuenrachael/pythUsdToken"
	"github.com/chewyuenrachael/pythUsdToken/config"
	"github.com/chewyuenrachael/pythUsdToken/exchange"
	"github.com/chewyuenrachael/pythUsdToken/http"
	"github.com/chewyuenrachael/pythUsdToken/journal"
	"github.com/chewyuenrachael/pythUsdToken/ledger"
	"github.com/chewyuenrachael/pythUsdToken/oracle"
	"github.com/holiman/uint256"
)

// Pyth ETH/USD price feed, used when no config file names another feed.
const defaultFeedID = "ff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace"

func main() {
	configPath := flag.String("config", "", "path to YAML config; built-in defaults apply when empty")
	flag.Parse()

	w := log.NewSyncWriter(os.Stderr)
	logger := log.NewLogfmtLogger(w)
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	if err := run(logger, *configPath); err != nil {
		logger.Log("msg", "service failed", "err", err)
		os.Exit(1)
	}
}

func run(logger log.Logger, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	token := pythusd.TokenInfo{
		Name:     cfg.Token.Name,
		Symbol:   cfg.Token.Symbol,
		Decimals: cfg.Token.Decimals,
	}

	src, closeOracle, err := buildOracle(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeOracle()
	src = oracle.NewLoggingService(log.With(logger, "component", "oracle"), src)

	store, closeLedger, err := buildLedger(cfg, token)
	if err != nil {
		return err
	}
	defer closeLedger()

	// Released value only leaves through the log; custody of the native
	// asset sits outside this service.
	payout := func(_ context.Context, to pythusd.Address, value *uint256.Int) error {
		return logger.Log("component", "payout", "to", to, "value", value.Dec())
	}

	svc, err := exchange.NewService(src, store, payout, exchange.NativeRate)
	if err != nil {
		return err
	}
	svc = exchange.NewLoggingService(log.With(logger, "component", "exchange"), svc)

	if cfg.Journal.Enabled {
		pool, err := journal.Connect(ctx, cfg.Journal.Postgres)
		if err != nil {
			return fmt.Errorf("connect journal: %w", err)
		}
		defer pool.Close()

		if err := journal.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		writer := journal.NewWriter(journal.Config{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
		}, pool, log.With(logger, "component", "journal"))
		if err := writer.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			writer.Stop(stopCtx)
		}()

		svc = exchange.NewRecordingService(writer, svc)
	}

	handler := http.NewServer(svc, store, log.With(logger, "component", "http"))

	srv := &nhttp.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Log("transport", "http", "address", cfg.Server.Addr, "msg", "listening")
		if err := srv.ListenAndServe(); err != nil && err != nhttp.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Log("msg", "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func loadConfig(path string) (*config.ServiceConfig, error) {
	if path == "" {
		return config.Default(defaultFeedID), nil
	}
	return config.LoadAndValidate(path)
}

func buildOracle(ctx context.Context, cfg *config.ServiceConfig, logger log.Logger) (oracle.Service, func(), error) {
	noop := func() {}
	switch cfg.Oracle.Source {
	case config.OracleSourceStatic:
		return oracle.NewStaticService(pythusd.PriceData{
			Price: cfg.Oracle.StaticPrice,
			Expo:  -pythusd.PriceDecimals,
		}), noop, nil
	case config.OracleSourceHermes:
		return oracle.NewHermesService(cfg.Oracle.Endpoint, cfg.Oracle.FeedID, cfg.Oracle.Timeout), noop, nil
	case config.OracleSourceStream:
		stream, err := oracle.NewStreamService(ctx, cfg.Oracle.Endpoint, cfg.Oracle.FeedID,
			log.With(logger, "component", "oracle_stream"))
		if err != nil {
			return nil, nil, fmt.Errorf("connect price stream: %w", err)
		}
		return stream, func() { stream.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown oracle source %q", cfg.Oracle.Source)
	}
}

func buildLedger(cfg *config.ServiceConfig, token pythusd.TokenInfo) (ledger.Ledger, func(), error) {
	switch cfg.Ledger.Backend {
	case config.LedgerBackendMemory:
		return ledger.NewMemory(token), func() {}, nil
	case config.LedgerBackendSQLite:
		store, err := ledger.NewSQLite(cfg.Ledger.Path, token)
		if err != nil {
			return nil, nil, fmt.Errorf("open ledger: %w", err)
		}
		return store, func() { store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}
}
