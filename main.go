package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"memoserv/internal/dispatch"
	"memoserv/internal/server"
	"memoserv/internal/store"
	"memoserv/pkg/logger"
)

func main() {
	// A missing .env file is fine; the OS environment is enough.
	_ = godotenv.Load()
	logger.Init()
	defer logger.Log.Sync()

	port := envOr("PORT", "12345")
	dataDir := envOr("DATA_DIR", "data")

	st := store.New(dataDir)
	if err := st.LoadAll(); err != nil {
		logger.Sugar.Fatalf("could not load data directory %s: %v", dataDir, err)
	}

	d := dispatch.New(st)

	srv := server.New(":"+port, d)
	if err := srv.Start(); err != nil {
		logger.Sugar.Fatalf("could not start server: %v", err)
	}

	// Optional WebSocket bridge for browser clients, enabled by WS_PORT.
	var wsSrv *http.Server
	if wsPort := os.Getenv("WS_PORT"); wsPort != "" {
		mux := http.NewServeMux()
		mux.Handle("/ws", server.NewBridge(d))
		wsSrv = &http.Server{Addr: ":" + wsPort, Handler: mux}
		go func() {
			logger.Sugar.Infof("websocket bridge listening on :%s", wsPort)
			if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Sugar.Errorf("websocket bridge: %v", err)
			}
		}()
	}

	// Block until a termination signal, then stop accepting, flush both
	// collections once, and exit.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Sugar.Info("shutting down")
	srv.Shutdown()
	if wsSrv != nil {
		wsSrv.Close()
	}
	if err := st.FlushAll(); err != nil {
		logger.Sugar.Errorf("final flush failed: %v", err)
	}
	logger.Sugar.Info("goodbye")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
