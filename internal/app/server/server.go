package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"payhub/internal/domain/auth"
	"payhub/internal/domain/payrun"
	"payhub/internal/platform/config"
	cryptoutil "payhub/internal/platform/crypto"
	"payhub/internal/platform/db"
	"payhub/internal/platform/email"
	"payhub/internal/platform/jobs"
	"payhub/internal/platform/metrics"
	"payhub/internal/platform/requestctx"
	"payhub/internal/transport/http/api"
	adminhandler "payhub/internal/transport/http/handlers/admin"
	audithandler "payhub/internal/transport/http/handlers/audit"
	authhandler "payhub/internal/transport/http/handlers/auth"
	companyhandler "payhub/internal/transport/http/handlers/company"
	employeehandler "payhub/internal/transport/http/handlers/employee"
	paymenthandler "payhub/internal/transport/http/handlers/payment"
	payrunhandler "payhub/internal/transport/http/handlers/payrun"
	paysliphandler "payhub/internal/transport/http/handlers/payslip"
	reportshandler "payhub/internal/transport/http/handlers/reports"
	"payhub/internal/transport/http/middleware"
)

type App struct {
	Config config.Config
	DB     *pgxpool.Pool
	Jobs   *jobs.Service
	Router http.Handler
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, "migrations"); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			pool.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	crypto, err := cryptoutil.New(cfg.DataEncryptionKey)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	if !crypto.Configured() {
		slog.Warn("DATA_ENCRYPTION_KEY not set, bank details stored in plain text")
	}

	mailer := email.New(cfg)
	collector := metrics.New()
	jobService := jobs.New(pool)
	pdfService := payrun.NewPDFService(pool, cfg.StorageDir)

	app := &App{Config: cfg, DB: pool, Jobs: jobService}
	app.Router = app.buildRouter(crypto, mailer, collector, jobService, pdfService)
	return app, nil
}

func (a *App) buildRouter(crypto *cryptoutil.Service, mailer email.Mailer, collector *metrics.Collector, jobService *jobs.Service, pdfService *payrun.PDFService) http.Handler {
	cfg := a.Config
	pool := a.DB

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	if cfg.MetricsEnabled {
		router.Use(middleware.Metrics(collector))
	}
	router.Use(middleware.Auth(cfg.JWTSecret, authhandler.NewSessions(pool)))
	router.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
	router.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.With(middleware.RequirePermission(auth.ResourceMetrics, auth.ActionView)).Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, collector.Snapshot(), requestctx.GetRequestID(r.Context()))
		})
	}

	router.Route("/api/v1", func(r chi.Router) {
		authHandler := authhandler.NewHandler(pool, cfg.JWTSecret, cfg.SessionTTL, mailer, cfg.EmailFrom)
		adminHandler := adminhandler.NewHandler(pool, mailer, cfg.EmailFrom)

		r.Route("/auth", func(r chi.Router) {
			authHandler.RegisterRoutes(r)
			// Older console builds manage users through the auth prefix.
			r.With(middleware.RequirePermission(auth.ResourceUsers, auth.ActionView)).Get("/users", adminHandler.HandleList)
			r.With(middleware.RequirePermission(auth.ResourceUsers, auth.ActionCreate)).Post("/create-user", adminHandler.HandleCreate)
		})

		r.Route("/admin", adminHandler.RegisterRoutes)
		r.Route("/company", companyhandler.NewHandler(pool, cfg.StorageDir, cfg.MaxLogoBytes).RegisterRoutes)
		r.Route("/employees", employeehandler.NewHandler(pool, crypto).RegisterRoutes)
		r.Route("/payruns", payrunhandler.NewHandler(pool, jobService, pdfService).RegisterRoutes)
		r.Route("/payslips", paysliphandler.NewHandler(pool, pdfService).RegisterRoutes)
		r.Route("/payments", paymenthandler.NewHandler(pool, jobService).RegisterRoutes)
		r.Route("/reports", reportshandler.NewHandler(pool).RegisterRoutes)
		r.Route("/audit", audithandler.NewHandler(pool).RegisterRoutes)
	})

	return router
}

// Run blocks until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	a.Jobs.Start(ctx)

	srv := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("payhub server listening on %s", a.Config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (a *App) Close() {
	a.DB.Close()
}
