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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/auditworks/casetrainer/internal/api/http"
	auth "github.com/auditworks/casetrainer/internal/auth/middleware"
	"github.com/auditworks/casetrainer/internal/casework"
	"github.com/auditworks/casetrainer/internal/cohort"
	"github.com/auditworks/casetrainer/internal/config"
	"github.com/auditworks/casetrainer/internal/db"
	"github.com/auditworks/casetrainer/internal/eventlog"
	"github.com/auditworks/casetrainer/internal/rbac"
	"github.com/auditworks/casetrainer/internal/remote"
	"github.com/auditworks/casetrainer/internal/session"
	"github.com/auditworks/casetrainer/internal/storage"
)

func main() {
	cfg := config.FromEnv()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// --- Stores ---
	var (
		store  casework.Store
		docs   remote.DocStore
		events eventlog.Sink
	)
	if cfg.DBDriver == "memory" {
		store = casework.NewInMemoryStore()
		docs = remote.NewInMemoryStore()
		events = eventlog.NewMemory()
	} else {
		dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
		if err != nil {
			log.Fatalf("db open failed: %v", err)
		}
		defer dbh.Close()
		store = casework.NewSQLStore(dbh)
		docs = remote.NewSQLStore(dbh)
		events = eventlog.NewRepo(dbh)
	}
	bootstrapAdmin(ctx, store, cfg)

	blobs, err := storage.NewFSStore(cfg.DataDir)
	if err != nil {
		log.Fatalf("data dir: %v", err)
	}

	// --- Sessions ---
	mgr := session.NewManager(store, docs, casework.BuiltinExercises(), events,
		session.WithDebounce(cfg.SaveDebounce),
		session.WithSuppression(cfg.SuppressWindow),
		session.WithWriteTimeout(cfg.WriteTimeout),
	)
	cohortCfg := cohort.Config{
		ReadinessMinScore:    cfg.ReadinessMinScore,
		ReadinessMaxCritical: cfg.ReadinessMaxCritical,
		RushedThresholdSec:   cfg.RushedThresholdSec,
		ImproveScoreDelta:    cfg.ImproveScoreDelta,
	}

	authSvc := auth.NewAuthService(cfg.AuthSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, store))

	// Protected API (JWT -> role in context -> RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		pr.With(rbac.Require("case:create")).
			Post("/cases", api.PutCaseHandler(store))
		pr.With(rbac.Require("case:view")).
			Get("/cases", api.ListCasesHandler(store))
		pr.With(rbac.Require("case:view")).
			Get("/cases/{caseID}", api.GetCaseHandler(store))
		pr.With(rbac.Require("case:create")).
			Post("/cases/{caseID}/docs/{docID}", api.UploadCaseDocHandler(blobs))
		pr.With(rbac.Require("case:view")).
			Get("/cases/{caseID}/docs/{docID}", api.GetCaseDocHandler(blobs, mgr))

		// Trainee session flow
		pr.With(rbac.Require("session:open")).
			Post("/cases/{caseID}/session", api.OpenSessionHandler(mgr))
		pr.With(rbac.Require("session:open")).
			Get("/cases/{caseID}/session", api.GetSessionHandler(mgr))
		pr.With(rbac.Require("session:save")).
			Post("/cases/{caseID}/session/draft", api.MutateDraftHandler(mgr))
		pr.With(rbac.Require("session:save")).
			Post("/cases/{caseID}/session/step", api.NavigateHandler(mgr))
		pr.With(rbac.Require("session:submit")).
			Post("/cases/{caseID}/session/submit", api.SubmitSessionHandler(mgr))
		pr.With(rbac.Require("session:open")).
			Delete("/cases/{caseID}/session", api.CloseSessionHandler(mgr))

		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts", api.ListAttemptsHandler(store))

		// Instructor dashboard
		pr.With(rbac.Require("cohort:view")).
			Get("/cases/{caseID}/cohort", api.CohortHandler(store, mgr, cohortCfg))

		pr.With(rbac.Require("users:list")).
			Get("/users", api.ListUsersHandler(store))
		pr.With(rbac.Require("users:create")).
			Post("/users", api.PutUserHandler(store))
		pr.Post("/users/password", api.ChangePasswordHandler(store))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Printf("listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	// Tear sessions down first so no debounced save fires after the stores
	// are released.
	mgr.CloseAll()
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
}

func bootstrapAdmin(ctx context.Context, store casework.Store, cfg config.Config) {
	if cfg.AdminUser == "" || cfg.AdminPassHash == "" {
		return
	}
	if _, err := store.GetUser(ctx, cfg.AdminUser); err == nil {
		return
	}
	err := store.PutUser(ctx, casework.User{
		Username: cfg.AdminUser,
		PassHash: cfg.AdminPassHash,
		Role:     "admin",
	})
	if err != nil {
		log.Printf("bootstrap admin: %v", err)
	}
}
