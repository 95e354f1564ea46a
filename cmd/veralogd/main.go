package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"

	"github.com/veralog/veralog/internal/audit"
	"github.com/veralog/veralog/internal/config"
	"github.com/veralog/veralog/internal/handlers"
	"github.com/veralog/veralog/internal/keys"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Load configuration
	cfg := config.LoadFromEnv()

	// Keys come from the external secret store boundary (env or key file).
	keyring, err := keys.Load(cfg.SigningKey, cfg.EncryptionKey, cfg.KeyFile)
	if err != nil {
		log.Fatalf("failed to load keyring: %v", err)
	}

	// Database (optional): Postgres store in production, file store for dev.
	var (
		db     *sql.DB
		store  audit.Store
		pinger handlers.Pinger
	)
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to open postgres: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("failed to ping postgres: %v", err)
		}
		pg := audit.NewPGStore(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatalf("failed to ensure schema: %v", err)
		}
		store = pg
		pinger = pg
		log.Println("connected to postgres")
	} else {
		store = audit.NewFileStore(cfg.ArchiveDir)
		log.Printf("no postgres configured; using file store at %s (dev only)", cfg.ArchiveDir)
	}

	// Kafka mirror (optional): streams confirmed entries for SIEM ingestion.
	var mirror audit.Mirror
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic != "" {
		producer, err := audit.NewKafkaProducer(audit.KafkaProducerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			log.Fatalf("failed to initialize kafka producer: %v", err)
		}
		mirror = audit.NewKafkaMirror(producer, 0)
		log.Printf("kafka mirror initialized (brokers=%v topic=%s)", cfg.KafkaBrokers, cfg.KafkaTopic)
	} else {
		log.Println("kafka mirror not started: set KAFKA_BROKERS and KAFKA_TOPIC to enable")
	}

	// Ledger: the single writer for this chain instance.
	ledger, err := audit.NewLedger(store, keyring, audit.LedgerOptions{
		MaxRetries:   cfg.AppendMaxRetries,
		RetryBackoff: cfg.AppendBackoff,
		Mirror:       mirror,
	})
	if err != nil {
		log.Fatalf("failed to construct ledger: %v", err)
	}
	openCtx, cancelOpen := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ledger.Open(openCtx); err != nil {
		log.Fatalf("failed to open ledger: %v", err)
	}
	cancelOpen()

	// S3 archiver (optional): off-system archival for export bundles.
	var archiver audit.Archiver
	if cfg.S3Bucket != "" {
		archiver, err = audit.NewS3Archiver(context.Background(), cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			log.Fatalf("failed to initialize s3 archiver: %v", err)
		}
		log.Printf("s3 archiver initialized (bucket=%s prefix=%s)", cfg.S3Bucket, cfg.S3Prefix)
	}

	var authSecret []byte
	if cfg.AuthJWTSecret != "" {
		authSecret = []byte(cfg.AuthJWTSecret)
	} else {
		log.Println("WARNING: AUTH_JWT_SECRET not set; operator endpoints are unauthenticated")
	}

	// Router
	r := chi.NewRouter()
	handlers.RegisterRoutes(handlers.Deps{
		Ledger:     ledger,
		Verifier:   audit.NewVerifier(store, keyring),
		Exporter:   audit.NewExporter(store, keyring),
		Reporter:   audit.NewReporter(store, keyring),
		Archiver:   archiver,
		Pinger:     pinger,
		AuthSecret: authSecret,
	}, r)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting veralogd on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if mirror != nil {
		if err := mirror.Close(); err != nil {
			log.Printf("mirror shutdown: %v", err)
		}
	}
	if db != nil {
		_ = db.Close()
	}
	log.Println("stopped")
}
