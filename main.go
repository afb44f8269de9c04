package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evangelionleo/labelU/config"
	"github.com/evangelionleo/labelU/handler"
	"github.com/evangelionleo/labelU/service"
	"github.com/evangelionleo/labelU/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv(config.EnvPrefix+"_CONFIG"), "path to config.yaml")
	flag.Parse()

	// 加载配置
	cfg, err := config.New(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := utils.InitLogger(cfg.Server.Mode); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.Sync()

	utils.Logger.Info("starting labelU segmentation server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 确保上传目录存在
	if err := os.MkdirAll(cfg.Upload.UploadDir, 0755); err != nil {
		utils.Logger.Fatal("failed to create upload directory", zap.Error(err))
	}

	// 初始化Redis，连接失败时不缓存
	var cache service.ResultCache
	if cfg.Redis.Enabled {
		redisService := service.NewRedisService(&cfg.Redis)
		defer redisService.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := redisService.Ping(pingCtx)
		cancel()
		if err != nil {
			utils.Logger.Warn("redis connection failed, cache disabled", zap.Error(err))
		} else {
			utils.Logger.Info("redis connected successfully", zap.String("addr", cfg.Redis.Addr))
			cache = redisService
		}
	}

	// 模型和服务
	gate := service.NewInferenceGate(&cfg.Inference)
	predictor := service.NewPredictor(ctx, cfg, gate)
	sessions := service.NewSessionManager(&cfg.Session, predictor)
	detector := service.NewDetector(ctx, &cfg.Detector)
	annotator := service.NewAnnotateService(detector, predictor, cache)

	utils.Logger.Info("models initialized",
		zap.String("predictor", predictor.Name()),
		zap.Bool("model_available", predictor.ModelAvailable()),
		zap.String("detector", annotator.DetectorName()),
		zap.Bool("gocv_available", service.GoCVAvailable))

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	router := handler.NewRouter(cfg, handler.Handlers{
		Upload:   handler.NewUploadHandler(cfg),
		Session:  handler.NewSessionHandler(cfg, sessions),
		Annotate: handler.NewAnnotateHandler(cfg, annotator),
		Health: handler.NewHealthHandler(handler.BuildInfo{
			Version:   Version,
			BuildTime: BuildTime,
			GitCommit: GitCommit,
		}, predictor, annotator, cache),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	go func() {
		utils.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	utils.Logger.Info("shutting down server", zap.Int("active_sessions", sessions.Len()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Logger.Error("server shutdown failed", zap.Error(err))
	}
}
