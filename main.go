package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/image-classifier/internal/config"
	"github.com/example/image-classifier/internal/grpchealth"
	"github.com/example/image-classifier/internal/handlers"
	"github.com/example/image-classifier/internal/inference"
	"github.com/example/image-classifier/internal/logging"
	"github.com/example/image-classifier/internal/repository"
	"github.com/example/image-classifier/internal/server"
	"github.com/example/image-classifier/internal/usecase"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	model, err := inference.LoadModel(inference.LoadOptions{
		ModelPath:     cfg.Model.Path,
		MetadataPath:  cfg.Model.Metadata,
		SharedLibrary: cfg.Model.SharedLibrary,
	})
	if err != nil {
		logger.Fatal("failed to load model", zap.Error(err))
	}
	defer model.Close()

	meta := model.Metadata()
	normalizer, err := meta.Normalizer()
	if err != nil {
		logger.Fatal("invalid preprocessing contract", zap.Error(err))
	}
	classifier, err := inference.NewClassifier(model, meta.Classes)
	if err != nil {
		logger.Fatal("invalid classifier", zap.Error(err))
	}
	logger.Info("model loaded",
		zap.String("path", cfg.Model.Path),
		zap.String("model", meta.ModelName),
		zap.String("version", meta.Version),
		zap.Strings("classes", meta.Classes),
		zap.Int("image_size", meta.ImageSize),
		zap.String("resample", meta.Resample),
	)

	uc := usecase.NewPredictionUseCase(normalizer, classifier, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if cfg.Database.DSN != "" {
		db := initDatabase(ctx, cfg.Database, logger)
		repo := repository.NewPredictionRepository(db, logger)
		if err := repo.AutoMigrate(ctx); err != nil {
			logger.Fatal("auto migrate failed", zap.Error(err))
		}
		uc.WithRepository(repo)
	}

	if cfg.Redis.Addr != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		defer redisCancel()
		redisClient := initRedis(redisCtx, cfg.Redis, logger)
		defer redisClient.Close()

		namespace := fmt.Sprintf("prediction:%s:%s", meta.ModelName, meta.Version)
		uc.WithCache(usecase.NewRedisCache(redisClient), namespace, cfg.Redis.TTL)
	}

	router := handlers.NewRouter(logger, cfg.Server.AllowOrigins)
	router.MaxMultipartMemory = cfg.Server.MaxUploadBytes
	handlers.RegisterRoutes(router, uc, handlers.ServiceInfo{
		Version:        cfg.Server.Version,
		Model:          meta,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})

	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			logger.Fatal("failed to listen for gRPC health", zap.Error(err), zap.String("addr", cfg.Server.GRPCAddr))
		}
		health := grpchealth.NewServer(logger)
		go func() {
			if err := health.Serve(lis); err != nil {
				logger.Error("gRPC health server stopped", zap.Error(err))
			}
		}()
		defer health.Stop()
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	logger.Info("prediction service listening", zap.String("addr", cfg.Server.Addr))
	if err := server.Serve(srv, cfg.Server.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initDatabase(ctx context.Context, cfg config.DatabaseConfig, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnLifetime)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, cfg config.RedisConfig, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}
