package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/remote-device-control/backend/api/handlers"
	"github.com/remote-device-control/backend/internal/broker"
	"github.com/remote-device-control/backend/internal/config"
	"github.com/remote-device-control/backend/internal/gateway"
	"github.com/remote-device-control/backend/internal/inventory"
	"github.com/remote-device-control/backend/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init(false)
		logger.Errorf("load config: %v", err)
		os.Exit(1)
	}
	logger.Init(cfg.Debug)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	client, err := inventory.Connect(ctx, cfg)
	cancel()
	if err != nil {
		logger.Errorf("connect to mongo: %v", err)
		os.Exit(1)
	}
	defer inventory.Disconnect(client)

	store := inventory.NewStore(client, cfg.MongoDatabase)

	tuning := gateway.Tuning{
		WriteWait:      cfg.WriteWait,
		PongWait:       cfg.PongWait,
		MaxMessageSize: cfg.MaxMessageSize,
	}

	// The admin gateway and the state machine reference each other, so the
	// gateway is built first and the machine attached afterwards.
	adminGW := gateway.NewAdminGateway(tuning)
	machine := broker.NewMachine(store, adminGW, cfg.PendingTimeout)
	adminGW.AttachMachine(machine)

	commGW := gateway.NewCommGateway(machine, tuning)
	notifyGW := gateway.NewNotifyGateway(tuning)
	wsRouter := gateway.NewRouter(commGW, adminGW, notifyGW)

	deviceHandler := handlers.NewDeviceHandler(store, notifyGW)
	authHandler := handlers.NewAuthHandler(store)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.Use(corsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":   "ok",
			"sessions": machine.SessionCount(),
		})
	})

	api := r.Group("/api")
	{
		deviceHandler.RegisterRoutes(api)
		authHandler.RegisterRoutes(api)
	}

	// Websocket endpoints bypass gin so unknown paths under /ws/ can be
	// terminated without a handshake.
	mux := http.NewServeMux()
	mux.Handle("/ws/", wsRouter)
	mux.Handle("/", r)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Infof("shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("server shutdown: %v", err)
		}
	}()

	logger.Infof("starting server addr=%s", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("server failed: %v", err)
		os.Exit(1)
	}
}

// corsMiddleware returns a CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
