package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/vonote/vonote/internal/config"
	"github.com/vonote/vonote/internal/delivery"
	ws "github.com/vonote/vonote/internal/delivery/ws"
	"github.com/vonote/vonote/internal/domain"
	"github.com/vonote/vonote/internal/domain/stations"
	"github.com/vonote/vonote/internal/infra"
	"go.uber.org/zap"
)

func main() {

	// ENV + CONFIG
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	// LOGGER
	zcore, _ := zap.NewProduction()
	defer zcore.Sync()
	zsugar := zcore.Sugar()
	zl := logger.NewZapLogger(zsugar)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// POSTGRES
	pool, err := infra.NewPgxPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("postgres: ", err)
	}
	defer pool.Close()

	// REPOS + BLOB STORE
	noteRepo := infra.NewPostgresNoteRepo(pool)
	walletRepo := infra.NewPostgresWalletRepo(pool)
	blob := infra.NewHTTPBlobStore(cfg.Blob)

	// PROVIDERS
	sttPrimary := infra.NewDeepgramSTT(&cfg.STTPrimary)
	sttSecondary := infra.NewYandexSTT(&cfg.STTSecondary)
	llm := infra.NewOpenRouterClient(&cfg.Completion)
	embeddings := infra.NewOpenAIEmbeddings(&cfg.Embedding)

	// STATIONS
	transcriber := stations.NewTranscriber(
		sttPrimary, len(cfg.STTPrimary.Keys),
		sttSecondary, len(cfg.STTSecondary.Keys),
		zsugar,
	)
	extractor := stations.NewExtractor(llm, zsugar)
	embedder := stations.NewEmbedder(embeddings, zsugar)

	// SERVICES
	authService := domain.NewAuthService(pool, cfg.AuthSecret)
	uploadService := domain.NewUploadService(noteRepo, blob, zsugar)
	classifier := domain.NewClassifier(blob, cfg.ShortMaxBytes, cfg.ShortMaxSeconds, zsugar)
	billing := domain.NewBillingService(walletRepo, cfg.Billing.PricePerMinuteCents, zsugar)
	janitor := domain.NewJanitor(blob, noteRepo, cfg.CleanupInterval, zsugar)
	dispatcher := domain.NewDispatcher(noteRepo, classifier, cfg, zsugar)

	// WORKER POOLS
	runner := domain.NewRunner(
		cfg, noteRepo, billing,
		transcriber, extractor, embedder,
		blob, janitor, dispatcher,
		zsugar,
	)

	go func() {
		if err := runner.Start(ctx); err != nil {
			zsugar.Errorw("runner stopped", "err", err)
		}
	}()

	// WS HUB + BROADCAST LISTENER
	hub := ws.NewHub()

	go func() {
		for ev := range runner.Events() {

			type wsStatus struct {
				NoteID int64  `json:"noteId"`
				Status string `json:"status"`
				Reason string `json:"reason,omitempty"`
			}

			payload, err := json.Marshal(wsStatus{
				NoteID: ev.NoteID,
				Status: string(ev.Status),
				Reason: ev.Reason,
			})
			if err != nil {
				continue
			}

			hub.SendToRoom(strconv.FormatInt(ev.OwnerID, 10), payload)
		}
	}()

	// HANDLERS
	authHandler := delivery.NewAuthHandler(authService, zl)
	noteHandler := delivery.NewNoteHandler(noteRepo, uploadService, classifier, dispatcher, blob, zl)
	walletHandler := delivery.NewWalletHandler(walletRepo, zl)

	// ROUTER
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Auth"},
		AllowCredentials: true,
	}))

	delivery.RegisterRoutes(r, authHandler, authService, noteHandler, walletHandler)

	r.Get("/ws", ws.StatusHandler(hub, authService))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	zl.Log(logger.LogEntry{
		Level:   "info",
		Message: "server started",
		Fields:  map[string]any{"port": cfg.Port},
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zl.Log(logger.LogEntry{
			Level:   "error",
			Message: "server crashed",
			Error:   err,
		})
	}
}
