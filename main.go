package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"

	"flowai-video-server/modules/common/config"
	"flowai-video-server/modules/common/database"
	redisClient "flowai-video-server/modules/common/redis"
	"flowai-video-server/modules/common/storage"
	"flowai-video-server/modules/common/utils"
	"flowai-video-server/modules/generation"
	"flowai-video-server/modules/session"
	"flowai-video-server/modules/upload"
)

// CORS 헤더 추가
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// 헬스 체크 엔드포인트
func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "flowai-video-server",
	})
}

func limitsFrom(cfg *config.Config) upload.Limits {
	return upload.Limits{
		MaxImages:     cfg.MaxImages,
		MaxImageBytes: cfg.MaxImageBytes,
		MaxVideoBytes: cfg.MaxVideoBytes,
		PromptLimit:   cfg.PromptLimit,
		PromptWarnAt:  cfg.PromptWarnAt,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 환경변수 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	rdb, err := redisClient.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	db, err := database.NewClient(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize Database client: %v", err)
	}

	previews, err := upload.NewTempPreviewStore(cfg.PreviewDir, "/previews")
	if err != nil {
		log.Fatalf("❌ Failed to initialize preview store: %v", err)
	}
	defer previews.Close()

	limits := limitsFrom(cfg)
	queue := generation.NewRedisQueue(rdb)
	events := generation.NewEventBus(rdb)
	service := generation.NewService(cfg)
	generator := generation.NewQueueGenerator(db, queue)
	bucket := storage.NewClient(cfg)
	if bucket.Enabled() {
		generator.WithImageUploader(bucket)
	}

	manager := session.NewManager(func(id string, n upload.Notifier, onChange func(upload.View)) *upload.Controller {
		return upload.NewController(upload.Options{
			SessionID: id,
			Limits:    limits,
			Notifier:  n,
			Generator: generator,
			Previews:  previews,
			Thumbnail: utils.WebPThumbnail,
			OnChange:  onChange,
		})
	}, clockwork.NewRealClock())
	defer manager.Shutdown()

	// 정리 루틴 시작
	manager.StartCleanup(ctx)

	// 완료 이벤트 구독
	sub, err := events.Subscribe(ctx)
	if err != nil {
		log.Fatalf("❌ Failed to subscribe to generation events: %v", err)
	}
	defer sub.Close()
	go manager.ConsumeEvents(ctx, sub.Ch)

	// Redis Queue Worker 시작 (백그라운드)
	worker := generation.NewWorker(db, queue, queue, service, events)
	if bucket.Enabled() {
		log.Printf("🗄️  Archiving input images and generated videos to bucket: %s", cfg.StorageBucket)
		worker.WithArchiver(bucket)
	}
	go worker.Run(ctx)

	// 라우터 설정
	r := mux.NewRouter()
	r.HandleFunc("/", healthCheck).Methods("GET")
	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.PathPrefix("/previews/").Handler(previews).Methods("GET", "HEAD")
	session.NewHandler(manager, limits).RegisterRoutes(r)
	generation.NewHandler(db, service, generation.NewCanceller(db, queue, events)).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           enableCORS(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("🚀 FlowAI Video Server starting on port %s", cfg.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost:%s/ws?session=<id>", cfg.Port)
	log.Printf("❤️  Health check: http://localhost:%s/health", cfg.Port)
	log.Printf("📊 Metrics: http://localhost:%s/metrics", cfg.Port)

	go func() {
		<-ctx.Done()
		log.Println("🛑 Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("⚠️  Server shutdown error: %v", err)
		}
	}()

	// 서버 시작
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed to start: %v", err)
	}
}
