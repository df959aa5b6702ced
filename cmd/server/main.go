package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	_ "modernc.org/sqlite"

	emailPkg "gymdesk/internal/adapters/email"
	"gymdesk/internal/adapters/hosted"
	web "gymdesk/internal/adapters/http"
	"gymdesk/internal/adapters/http/perf"
	"gymdesk/internal/adapters/identity/local"
	"gymdesk/internal/adapters/storage"
	accountStore "gymdesk/internal/adapters/storage/account"
	collectionStore "gymdesk/internal/adapters/storage/collection"
	kvStore "gymdesk/internal/adapters/storage/kv"
	"gymdesk/internal/application/auth"
	"gymdesk/internal/application/guard"
	"gymdesk/internal/application/orchestrators"
	"gymdesk/internal/application/resource"
	"gymdesk/internal/application/sessionstore"
	"gymdesk/internal/config"
	"gymdesk/internal/metrics"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	config.SetupLogger(os.Stdout, cfg.LogLevel)

	// Initialize database with WAL mode, foreign keys, and busy timeout
	db, err := sql.Open("sqlite", storage.DSN(cfg.DBPath))
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)

	if err := db.Ping(); err != nil {
		log.Fatalf("database unreachable: %v", err)
	}
	if err := storage.InitDB(db); err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	// Performance instrumentation: wrap DB with timing, create collector
	collector := perf.NewCollector(perf.DefaultRingSize)
	timedDB := storage.NewTimedDB(db, collector, storage.WithSlowQuery(cfg.SlowQuery))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	instruments := metrics.NewCollector(reg)

	kv := kvStore.NewSQLiteStore(timedDB)

	var (
		provider auth.Provider
		backend  resource.Backend
		roles    web.RoleAssigner
		accounts *accountStore.SQLiteStore
	)
	switch cfg.Backend {
	case config.BackendHosted:
		client := hosted.NewClient(cfg.HostedURL, cfg.HostedAnonKey,
			hosted.WithRateLimit(cfg.HostedRPS, int(cfg.HostedRPS)+1),
		)
		identity := hosted.NewAuthProvider(client, kv)
		provider = identity
		backend = hosted.NewBackend(client, identity)
		slog.Info("startup_event", "event", "backend_selected", "backend", string(cfg.Backend), "url", cfg.HostedURL)
	default:
		accounts = accountStore.NewSQLiteStore(timedDB)
		identity := local.New(accounts, kv, emailSender(cfg), local.Config{
			Secret:    cfg.JWTSecret,
			AccessTTL: cfg.TokenTTL,
			ResetURL:  cfg.ResetURL,
			From:      cfg.EmailFrom,
		})
		provider = identity
		roles = identity
		backend = collectionStore.NewSQLiteStore(timedDB)
		slog.Info("startup_event", "event", "backend_selected", "backend", string(cfg.Backend), "db", cfg.DBPath)
	}

	clients := resource.NewClients(backend, instruments)

	ctx := context.Background()
	if accounts != nil {
		seedProgDeps := orchestrators.SeedProgramsDeps{Programs: clients.Programs, Classes: clients.Classes}
		if err := orchestrators.ExecuteSeedPrograms(ctx, seedProgDeps); err != nil {
			log.Fatalf("failed to seed programs: %v", err)
		}
		if !cfg.IsProduction() {
			testAcctDeps := orchestrators.TestAccountSeedDeps{
				Accounts: accounts,
				Members:  clients.Members,
				Trainers: clients.Trainers,
			}
			if err := orchestrators.ExecuteSeedTestAccounts(ctx, testAcctDeps); err != nil {
				log.Fatalf("failed to seed test accounts: %v", err)
			}
		}
	}

	resolver := auth.NewResolver(provider)
	sessions := sessionstore.New(kv, resolver, sessionstore.WithRecorder(instruments))
	if err := sessions.Init(ctx); err != nil {
		log.Fatalf("failed to initialize session store: %v", err)
	}
	defer sessions.Teardown()

	srv := web.NewServer(web.Deps{
		Sessions: sessions,
		Resolver: resolver,
		Clients:  clients,
		KV:       kv,
		Roles:    roles,
		Metrics:  instruments,
		Gatherer: reg,
		Perf:     collector,
		Policy:   guard.Policy{BlockUntilHydrated: cfg.StrictGuard},
	}, web.Options{
		CSRFKey:       cfg.CSRFKey,
		SecureCookies: cfg.IsProduction(),
		RateLimit:     cfg.RateLimit,
		SlowRequest:   cfg.SlowRequest,
	})
	defer srv.Close()

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("startup_event", "event", "listening", "version", version, "addr", cfg.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server_listen_failed", "error", err.Error())
			stop <- syscall.SIGTERM
		}
	}()

	<-stop
	slog.Info("shutdown_event", "event", "stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown_event", "event", "shutdown_failed", "error", err.Error())
	}
	slog.Info("shutdown_event", "event", "stopped")
}

// emailSender picks Resend when an API key is configured.
func emailSender(cfg *config.Config) emailPkg.Sender {
	if cfg.ResendAPIKey != "" {
		slog.Info("startup_event", "event", "email_sender", "sender", "resend")
		return emailPkg.NewResendSender(cfg.ResendAPIKey, cfg.EmailFrom)
	}
	if cfg.IsProduction() {
		slog.Warn("startup_event", "event", "email_sender", "sender", "noop", "reason", "GYMDESK_RESEND_API_KEY not set; reset emails are not delivered")
	} else {
		slog.Info("startup_event", "event", "email_sender", "sender", "noop")
	}
	return emailPkg.NewNoopSender()
}
