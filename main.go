package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"civicnotify/internal/api"
	"civicnotify/internal/complaint"
	"civicnotify/internal/compose"
	"civicnotify/internal/config"
	"civicnotify/internal/directory"
	"civicnotify/internal/dispatch"
	"civicnotify/internal/events"
	"civicnotify/internal/gateway"
	"civicnotify/internal/health"
	"civicnotify/internal/ledger"
	"civicnotify/internal/storage"
	"civicnotify/internal/telegram"
	"civicnotify/internal/token"
	"civicnotify/internal/translate"
)

func main() {
	log.Println("🚀 Starting civic notification dispatcher...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("❌ Configuration error:", err)
	}
	log.Println("✓ Configuration loaded")

	readiness := cfg.CheckReadiness()
	for _, w := range readiness.Warnings {
		log.Println("⚠️ ", w)
	}
	for _, e := range readiness.Errors {
		log.Println("❌", e)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Routing
	var fallback *directory.DepartmentContact
	if cfg.DefaultContact != "" {
		name, address, _ := config.ParseContact(cfg.DefaultContact)
		fallback = &directory.DepartmentContact{Name: name, Address: address}
	}
	dir, err := directory.LoadFile(cfg.DirectoryFile, fallback)
	if err != nil {
		log.Fatal("❌ Failed to load department directory:", err)
	}
	log.Printf("✓ Department directory loaded (%d entries, %d cities)", len(dir.Entries()), len(dir.Cities()))

	// Action tokens
	var tokenStore token.Store
	if cfg.RedisAddr != "" {
		rs, err := token.NewRedisStore(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatal("❌ Failed to connect to Redis:", err)
		}
		defer rs.Close()
		tokenStore = rs
		log.Println("✓ Action tokens stored in Redis at", cfg.RedisAddr)
	} else {
		tokenStore = token.NewMemoryStore()
		log.Println("📋 Action tokens kept in memory")
	}
	issuer := token.NewIssuer(tokenStore, cfg.TokenValidity)

	// Ledger and complaint snapshots
	var (
		led   ledger.Ledger
		store storage.Store
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("❌ Failed to open database pool:", err)
		}
		defer pool.Close()

		pl := ledger.NewPGLedger(pool)
		ps := storage.NewPGStore(pool)
		if err := pl.Migrate(ctx); err != nil {
			log.Fatal("❌ Ledger migration failed:", err)
		}
		if err := ps.Migrate(ctx); err != nil {
			log.Fatal("❌ Complaint store migration failed:", err)
		}
		led, store = pl, ps
		log.Println("✓ Delivery ledger backed by PostgreSQL")
	} else {
		led, store = ledger.NewMemoryLedger(), storage.NewMemoryStore()
		log.Println("📋 Delivery ledger kept in memory")
	}

	// Gateway, composition and translation
	gw := gateway.NewFromConfig(cfg)
	if cfg.DebugMode {
		log.Println("🐛 Debug mode: gateway calls are simulated")
	}

	composer := compose.New(compose.Options{
		BackendURL:     cfg.BackendURL,
		FrontendURL:    cfg.FrontendURL,
		DefaultLimit:   cfg.TruncateLength,
		CategoryLimits: cfg.CategoryTruncate,
		MaxBodyRunes:   cfg.MaxBodyLength,
	})

	var translator dispatch.Translator
	tr, err := translate.NewTranslator(ctx, cfg.TranslateAPIKey, cfg.TranslateLanguage)
	if err != nil {
		log.Println("⚠️  Translation disabled:", err)
	} else if tr != nil {
		defer tr.Close()
		translator = tr
		log.Println("✓ Official messages translated to", cfg.TranslateLanguage)
	}

	opts := dispatch.Options{
		MaxAttempts:     cfg.RetryMaxAttempts,
		BaseDelay:       cfg.RetryBaseDelay,
		Multiplier:      cfg.RetryMultiplier,
		CallTimeout:     cfg.RequestTimeout,
		OperatorAddress: cfg.OperatorAddress,
	}
	if tg := telegram.NewClient(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.DebugMode); tg != nil {
		opts.Alerter = tg
	}
	dispatcher := dispatch.New(gw, led, dir, issuer, composer, translator, opts)

	// Worker pool
	poolCtx, cancelPool := context.WithCancel(context.Background())
	defer cancelPool()
	pool := complaint.NewWorkerPool(poolCtx, dispatch.NewProcessor(dispatcher, store), cfg.WorkerPoolSize)
	log.Printf("✓ Worker pool started with %d workers", cfg.WorkerPoolSize)

	monitor := health.NewMonitor()
	go func() {
		for res := range pool.Results() {
			monitor.Record(res)
			if res.Error != nil {
				log.Printf("⚠️  Event %s (complaint %s) failed: %v", res.EventID, res.ComplaintID, res.Error)
			}
		}
	}()

	// Kafka intake
	var consumer *events.Consumer
	consumerDone := make(chan struct{})
	if len(cfg.KafkaBrokers) > 0 {
		consumer = events.NewConsumer(cfg.KafkaBrokers, pool)
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Println("❌ Event consumer stopped:", err)
			}
		}()
	} else {
		close(consumerDone)
		log.Println("📋 KAFKA_BROKERS not set, accepting events over HTTP only")
	}

	// HTTP
	srv := api.NewServer(":"+cfg.HTTPPort, api.NewRouter(api.Deps{
		Tokens:  issuer,
		Store:   store,
		Ledger:  led,
		Events:  pool,
		Monitor: monitor,
	}))
	go func() {
		log.Printf("🌐 HTTP server listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Println("❌ HTTP server error:", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("🛑 Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Println("⚠️  HTTP shutdown:", err)
	}
	if consumer != nil {
		<-consumerDone
		if err := consumer.Close(); err != nil {
			log.Println("⚠️  Consumer close:", err)
		}
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		log.Println("⚠️  Dispatcher shutdown:", err)
	}
	pool.Close()

	log.Println("✅ Shutdown complete")
}
