package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	api "github.com/mind-engage/mindengage-quiz/internal/api/http"
	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/config"
	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/logging"
	"github.com/mind-engage/mindengage-quiz/internal/metrics"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

func main() {
	cfg := config.FromEnv()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		logger.Fatal("db driver", zap.Error(err))
	}
	dbh, err := db.Open(ctx, driver, cfg.DBDSN)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer dbh.Close()

	// --- RBAC ---
	perms, err := rbac.LoadPolicy(cfg.RBACPolicyFile)
	if err != nil {
		logger.Fatal("rbac policy", zap.Error(err))
	}
	checker := rbac.NewChecker(perms)

	// --- Quiz service ---
	opts := []quiz.Option{
		quiz.WithAuthorizer(checker),
		quiz.WithLogger(logger.Named("quiz")),
	}
	if cfg.EnableMetrics {
		opts = append(opts, quiz.WithObserver(metrics.NewRecorder(prometheus.DefaultRegisterer)))
	}
	svc := quiz.NewService(quiz.NewSQLStore(dbh, driver, cfg.SiteID), grading.NewRegistry(), opts...)

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret,
		auth.WithAdmin(cfg.AdminUser, cfg.AdminPassHash),
		auth.WithDevLogin(cfg.EnableLocalAuth),
		auth.WithLogger(logger.Named("auth")))

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	if cfg.EnableMetrics {
		r.Use(metrics.Middleware)
	}
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc))

	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		api.New(svc, logger.Named("http")).Mount(pr, checker)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if cfg.EnableMetrics {
		r.Handle("/metrics", metrics.Handler())
	}

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("db", string(driver)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
