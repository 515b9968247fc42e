package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/image-classifier/internal/config"
	"github.com/example/image-classifier/internal/form"
	"github.com/example/image-classifier/internal/grpchealth"
	"github.com/example/image-classifier/internal/handlers"
	"github.com/example/image-classifier/internal/logging"
	"github.com/example/image-classifier/internal/server"
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

	var checker form.HealthChecker
	if cfg.Form.HealthAddr != "" {
		c, err := grpchealth.Dial(context.Background(), cfg.Form.HealthAddr, logger)
		if err != nil {
			logger.Fatal("failed to prepare health checker", zap.Error(err))
		}
		defer c.Close()
		checker = c
	}

	router := gin.New()
	router.MaxMultipartMemory = cfg.Server.MaxUploadBytes
	router.Use(handlers.Recovery(logger), handlers.RequestLogger(logger))
	form.RegisterRoutes(router, form.NewClient(cfg.Form.PredictURL, cfg.Form.Timeout), checker, logger)

	srv := &http.Server{
		Addr:    cfg.Form.Addr,
		Handler: router,
	}

	logger.Info("upload form listening", zap.String("addr", cfg.Form.Addr), zap.String("predict_url", cfg.Form.PredictURL))
	if err := server.Serve(srv, cfg.Server.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
