package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ordersplit/internal/codec"
	"ordersplit/internal/config"
	"ordersplit/internal/filename"
	"ordersplit/internal/journal"
	"ordersplit/internal/ledger"
	"ordersplit/internal/logger"
	"ordersplit/internal/metrics"
	"ordersplit/internal/sink"
	"ordersplit/internal/watcher"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to scan.properties (default ./scan.properties if present)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil && !errors.Is(err, context.Canceled) {
		zl.Error("ordersplit failed", zap.Error(err))
		zl.Sync()
		os.Exit(1)
	}
	zl.Info("ordersplit stopped")
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	zl.Info("starting ordersplit",
		zap.String("input", cfg.InputDirectory),
		zap.String("output", cfg.OutputDirectory),
		zap.String("prefix", cfg.InputFilePrefix),
		zap.String("extension", cfg.FileExtension),
		zap.Int("workers", cfg.Workers))

	var st ledger.Store = ledger.NewInMemoryStore()
	if cfg.LedgerDirectory != "" {
		ps, err := ledger.NewPebbleStore(cfg.LedgerDirectory)
		if err != nil {
			return fmt.Errorf("init ledger: %w", err)
		}
		st = ps
	}
	defer st.Close()

	jw, err := openJournal(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer jw.Close()

	mreg := metrics.NewRegistry()
	if cfg.MetricsAddress != "" {
		srv := serveMetrics(cfg.MetricsAddress, mreg, zl)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	rule := filename.New(cfg.InputFilePrefix, cfg.FileExtension)
	disp := watcher.NewDispatcher(watcher.Deps{
		Codec:   codec.New(),
		Sink:    sink.New(cfg.OutputDirectory, zl),
		Rule:    rule,
		Ledger:  st,
		Journal: jw,
		Metrics: mreg,
		Log:     zl,

		JournalTimeout: cfg.JournalTimeout,
	})
	w := watcher.New(watcher.Config{InputDirectory: cfg.InputDirectory, Workers: cfg.Workers}, disp, rule, zl, mreg)
	return w.Run(ctx)
}

// openJournal combines the configured journal sinks; with none configured
// records are dropped.
func openJournal(ctx context.Context, cfg *config.Config, zl *zap.Logger) (journal.Writer, error) {
	var ws []journal.Writer
	if cfg.JournalPath != "" {
		fw, err := journal.NewFileWriter(cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("init journal file: %w", err)
		}
		ws = append(ws, fw)
	}
	if cfg.Kafka.Bootstrap != "" {
		if cfg.Kafka.TxID != "" {
			tw, err := journal.NewTxWriter(ctx, cfg.Kafka.Bootstrap, cfg.Kafka.Topic, cfg.Kafka.TxID)
			if err != nil {
				return nil, fmt.Errorf("init journal tx producer: %w", err)
			}
			ws = append(ws, tw)
		} else {
			ws = append(ws, journal.NewKafkaWriter(cfg.Kafka.Bootstrap, cfg.Kafka.Topic))
		}
	}
	if len(ws) == 0 {
		return journal.Nop{}, nil
	}
	mw := journal.NewMultiWriter(ws...)
	zl.Info("journal enabled", zap.Int("sinks", mw.Len()), zap.String("topic", cfg.Kafka.Topic))
	return mw, nil
}

func serveMetrics(addr string, mreg *metrics.Registry, zl *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", mreg.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("metrics server", zap.Error(err))
		}
	}()
	return srv
}
