package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SceneCast/cache"
	"SceneCast/config"
	"SceneCast/core/auth"
	"SceneCast/core/library"
	"SceneCast/core/session"
	"SceneCast/db"
	"SceneCast/logger"
	"SceneCast/repository"
	"SceneCast/storage"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     cfg.LogMaxAge,
		Compress:   true,
	})

	auth.SetJWTSecret(cfg.JWTSecret)

	// 设置服务器超时
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 初始化 MinIO 客户端
	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("初始化 MinIO 失败", logger.ErrorField(err))
	}

	// 连接数据库
	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("连接数据库失败", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrate(); err != nil {
		logger.Fatal("数据库迁移失败", logger.ErrorField(err))
	}

	// 连接 Redis
	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Fatal("连接 Redis 失败", logger.ErrorField(err))
	}
	defer cache.CloseRedis()

	repo := repository.NewGormPresentationRepository(db.GormDB)
	sessionCache := cache.NewSessionCache(cfg.SessionTTL)

	// 会话 Hub 与管理器
	hub := session.NewSessionHub()
	go hub.Run()
	defer hub.Stop()

	manager := session.NewManager(hub, sessionCache, repo, cfg)
	defer manager.CloseAll()

	// 清单目录：启动时全量加载，之后按配置热加载
	lib := library.NewLibrary(repo)
	if cfg.ManifestDir != "" {
		if _, err := os.Stat(cfg.ManifestDir); err == nil {
			loaded, err := lib.LoadDir(context.Background(), cfg.ManifestDir)
			if err != nil {
				logger.Warn("清单目录加载失败", logger.ErrorField(err))
			} else {
				logger.Info("清单目录加载完成", logger.Int("loaded", loaded))
			}

			if cfg.WatchManifests {
				stopWatch, err := lib.Watch(cfg.ManifestDir)
				if err != nil {
					logger.Warn("清单监听启动失败", logger.ErrorField(err))
				} else {
					defer stopWatch()
				}
			}
		}
	}

	apiHandler := NewAPIHandler(repo, cfg)
	sessionHandler := NewSessionHandler(manager, hub, repo, sessionCache, cfg)

	// 使用 gorilla/mux 创建路由器
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

	// 演示文稿管理
	router.HandleFunc("/api/presentations", apiHandler.ListPresentationsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/presentations", apiHandler.CreatePresentationHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/presentations/{slug}", apiHandler.GetPresentationHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/presentations/{id:[0-9]+}", apiHandler.DeletePresentationHandler).Methods(http.MethodDelete)

	// 观看会话
	router.HandleFunc("/api/watch/{slug}", sessionHandler.WatchHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{session_id}/state", sessionHandler.GetSessionStateHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions/{session_id}", sessionHandler.CloseSessionHandler).Methods(http.MethodDelete)

	// WebSocket 路由
	router.HandleFunc("/ws/session/{session_id}", sessionHandler.WebSocketHandler)

	server.Handler = router

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		logger.Info("服务启动",
			logger.String("addr", cfg.ServerAddr),
			logger.Duration("clockTick", cfg.ClockTick))

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("服务启动失败", logger.ErrorField(err))
		}
	}()

	// 等待中断信号
	<-stop
	logger.Info("收到停机信号，关闭服务中")

	// 创建一个5秒超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("服务强制关闭", logger.ErrorField(err))
	}

	logger.Info("服务已停止")
}
