package server

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ZenMix/cache"
	"ZenMix/config"
	"ZenMix/core/audio"
	"ZenMix/core/auth"
	"ZenMix/core/catalog"
	"ZenMix/core/ingest"
	"ZenMix/core/mixer"
	"ZenMix/core/mixstore"
	"ZenMix/db"
	"ZenMix/logger"
	"ZenMix/model"
	"ZenMix/repository"
	"ZenMix/storage"

	"github.com/gorilla/mux"
	"github.com/minio/minio-go/v7"
)

// Start wires up every collaborator and runs the HTTP server until a
// termination signal arrives.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
	})

	// 初始化 MinIO 客户端
	blobStore, err := storage.New(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize MinIO", logger.ErrorField(err))
	}

	gdb, err := db.ConnectGorm(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.CloseGorm(gdb)

	if err := db.AutoMigrateModels(gdb, &model.User{}, &model.AudioTrack{}, &model.Mix{}); err != nil {
		logger.Fatal("Failed to migrate database schema", logger.ErrorField(err))
	}

	// 旧版混音表使用原生 database/sql 只读访问，连接失败不致命
	legacyDB, err := db.ConnectSQL(cfg)
	if err != nil {
		logger.Warn("Legacy mix table unavailable, pre-migration mixes cannot be loaded",
			logger.ErrorField(err))
		legacyDB = nil
	} else {
		defer legacyDB.Close()
	}

	redisClient, err := db.ConnectRedis(cfg)
	if err != nil {
		logger.Warn("Redis unavailable, catalog cache disabled", logger.ErrorField(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	userRepo := repository.NewGormUserRepository(gdb)
	soundRepo := repository.NewGormSoundRepository(gdb)
	mixRepo := repository.NewMySQLMixRepository(gdb, legacyDB)

	jwt := auth.NewJWT(cfg.JWTSecret, cfg.JWTExpiry)
	identity := NewContextIdentity()

	// 启动时一次性选择音频后端
	var adapter audio.Adapter
	switch cfg.AudioBackend {
	case "speaker":
		adapter, err = audio.NewSpeakerAdapter()
		if err != nil {
			logger.Fatal("Failed to initialize speaker backend", logger.ErrorField(err))
		}
	default:
		adapter = audio.NewClockAdapter()
	}
	logger.Info("audio backend selected", logger.String("backend", adapter.Name()))

	sessions := mixer.NewManager(adapter, mixer.Options{
		Tick:            cfg.MixerTick,
		RestartOnResume: cfg.RestartOnResume,
	})

	catalogSvc := catalog.NewService(soundRepo, cache.NewCatalogCache(redisClient), blobStore, identity)
	mixStore := mixstore.NewStore(mixRepo, soundRepo, identity)

	apiHandler := NewAPIHandler(cfg, jwt, userRepo, catalogSvc, mixStore, sessions)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.IngestDir != "" {
		watcher := ingest.NewWatcher(cfg.IngestDir, catalogSvc)
		go func() {
			if err := watcher.Run(rootCtx); err != nil {
				logger.Error("ingest watcher stopped", logger.ErrorField(err))
			}
		}()
	}

	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 用户认证相关的API端点
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/logout", apiHandler.AuthMiddleware(apiHandler.LogoutHandler)).Methods(http.MethodPost)

	// 音色库相关的API端点
	router.HandleFunc("/api/sounds", apiHandler.AuthMiddleware(apiHandler.GetSoundsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/sounds", apiHandler.AuthMiddleware(apiHandler.UploadSoundHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/sounds/{id}", apiHandler.AuthMiddleware(apiHandler.DeleteSoundHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/categories", apiHandler.GetCategoriesHandler).Methods(http.MethodGet)

	// 混音存取相关的API端点
	router.HandleFunc("/api/mixes", apiHandler.AuthMiddleware(apiHandler.SaveMixHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/mixes", apiHandler.AuthMiddleware(apiHandler.ListMixesHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/mixes/{id}", apiHandler.AuthMiddleware(apiHandler.GetMixHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/mixes/{id}", apiHandler.AuthMiddleware(apiHandler.DeleteMixHandler)).Methods(http.MethodDelete)

	// 调音台相关的API端点
	router.HandleFunc("/api/mixer", apiHandler.AuthMiddleware(apiHandler.GetMixerStateHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/mixer", apiHandler.AuthMiddleware(apiHandler.CloseMixerHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/mixer/tracks", apiHandler.AuthMiddleware(apiHandler.AddTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/mixer/tracks/{id}/source", apiHandler.AuthMiddleware(apiHandler.AssignSourceHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/mixer/tracks/{id}/play", apiHandler.AuthMiddleware(apiHandler.PlayTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/mixer/tracks/{id}/pause", apiHandler.AuthMiddleware(apiHandler.PauseTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/mixer/tracks/{id}/volume", apiHandler.AuthMiddleware(apiHandler.SetTrackVolumeHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/mixer/tracks/{id}/loop", apiHandler.AuthMiddleware(apiHandler.SetLoopTimeHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/mixer/tracks/{id}", apiHandler.AuthMiddleware(apiHandler.RemoveTrackHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/mixer/play", apiHandler.AuthMiddleware(apiHandler.PlayAllHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/mixer/pause", apiHandler.AuthMiddleware(apiHandler.PauseAllHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/mixer/volume", apiHandler.AuthMiddleware(apiHandler.SetMasterVolumeHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/mixer/settings", apiHandler.AuthMiddleware(apiHandler.UpdateMasterSettingsHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/mixer/load/{mixId}", apiHandler.AuthMiddleware(apiHandler.LoadMixHandler)).Methods(http.MethodPost)

	// 调音台状态流
	router.HandleFunc("/ws/mixer", apiHandler.MixerStreamHandler).Methods(http.MethodGet)

	// 音频文件经 MinIO 代理提供给 clock 后端之外的客户端
	router.PathPrefix("/static/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		objectPath := strings.TrimPrefix(r.URL.Path, "/static/")

		ctx, cancelGet := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancelGet()

		object, err := blobStore.GetObject(ctx, objectPath, minio.GetObjectOptions{})
		if err != nil {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		defer object.Close()

		var contentType string
		switch {
		case strings.HasSuffix(objectPath, ".mp3"):
			contentType = "audio/mpeg"
		case strings.HasSuffix(objectPath, ".wav"):
			contentType = "audio/wav"
		default:
			contentType = "application/octet-stream"
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=31536000") // 缓存一年

		if _, err := io.Copy(w, object); err != nil {
			logger.Warn("serving audio object failed",
				logger.String("object", objectPath), logger.ErrorField(err))
		}
	})

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server listening", logger.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", logger.ErrorField(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	cancel()
	sessions.CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", logger.ErrorField(err))
	}
}
