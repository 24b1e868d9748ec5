package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/danhatton/bridgematch/internal/httpapi"
	"github.com/danhatton/bridgematch/internal/panel"
	"github.com/danhatton/bridgematch/internal/presentation"
	"github.com/danhatton/bridgematch/internal/ranker"
	"github.com/danhatton/bridgematch/internal/store"
	"github.com/danhatton/bridgematch/internal/telemetry"
)

const serviceVersion = "4.0.0"

func main() {
	dbFlag := flag.String("db", "", "path to SQLite database file (overrides DB_PATH env var)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	dbPath := *dbFlag
	if dbPath == "" {
		dbPath = os.Getenv("DB_PATH")
	}
	if dbPath == "" {
		dbPath = "./data/lenders.db"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "bridgematch", serviceVersion, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if err != nil {
		logger.Fatal("init tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	st, err := store.Open(dbPath, logger)
	if err != nil {
		logger.Fatal("open store", zap.String("db", dbPath), zap.Error(err))
	}
	defer st.Close()

	p, err := st.LoadPanel()
	if err != nil {
		logger.Fatal("load lender panel", zap.Error(err))
	}
	if p.Len() == 0 {
		logger.Warn("lender panel is empty; run lender-import first", zap.String("db", dbPath))
	}
	holder := panel.NewHolder(p)

	var caller ranker.Caller
	if ac, err := ranker.NewAnthropicCallerFromEnv(); err != nil {
		logger.Info("AI boundary disabled", zap.String("reason", err.Error()))
	} else {
		caller = ac
		logger.Info("AI boundary enabled")
	}

	h := httpapi.NewServer(
		holder,
		st,
		ranker.New(caller, logger),
		ranker.NewChatService(st, caller, logger),
		presentation.NewChromiumPDFRenderer(),
		logger,
	)

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("bridgematch listening",
		zap.String("addr", addr),
		zap.String("db", dbPath),
		zap.Int("lenders", p.Len()),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("serve", zap.Error(err))
	}
}
