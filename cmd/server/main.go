package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"simple-chat/internal/api"
	"simple-chat/internal/app"
	"simple-chat/internal/config"
	"simple-chat/internal/logger"
	"simple-chat/internal/repository/sqlstore"
	"simple-chat/internal/service/llm"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Log.Debug("No .env file loaded")
	}

	appConfig, err := config.LoadConfig()
	if err != nil {
		logger.Log.WithError(err).Fatal("Invalid configuration")
	}

	store, err := sqlstore.Open(appConfig.Database)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to initialize database")
	}
	defer store.Close()

	provider, err := llm.NewProvider(&appConfig.LLM)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to initialize LLM provider")
	}

	router := api.NewRouter(app.NewConfig(store, provider, appConfig))

	// No WriteTimeout: chat replies stream for as long as the upstream takes
	server := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Log.WithFields(logrus.Fields{
			"port":     appConfig.Server.Port,
			"provider": appConfig.LLM.Provider,
			"model":    provider.Model(),
			"driver":   appConfig.Database.Driver,
		}).Info("Server starting")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.WithError(err).Fatal("Server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), appConfig.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Graceful shutdown failed")
	}
}
