package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"BucketFM/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewRouter 注册所有路由
func NewRouter(h *APIHandler) *mux.Router {
	router := mux.NewRouter()

	// CORS
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/tracks/metadata", h.GetTrackMetadataHandler).Methods(http.MethodGet)
	api.HandleFunc("/albums/tracks", h.GetAlbumTracksHandler).Methods(http.MethodGet)
	api.HandleFunc("/albums/remaining", h.GetRemainingTracksHandler).Methods(http.MethodGet)
	api.HandleFunc("/library", h.GetLibraryHandler).Methods(http.MethodGet)
	api.HandleFunc("/cache/stats", h.GetCacheStatsHandler).Methods(http.MethodGet)
	api.HandleFunc("/cache/tags", h.ClearTagCacheHandler).Methods(http.MethodDelete)

	// 播放控制
	api.HandleFunc("/player/status", h.PlayerStatusHandler).Methods(http.MethodGet)
	for path, command := range map[string]MessageType{
		"play":     MsgTypePlay,
		"pause":    MsgTypePause,
		"resume":   MsgTypeResume,
		"next":     MsgTypeNext,
		"previous": MsgTypePrev,
		"seek":     MsgTypeSeek,
	} {
		api.HandleFunc("/player/"+path, h.PlayerCommandHandler(command)).Methods(http.MethodPost)
	}

	router.HandleFunc("/ws/player", h.WebSocketHandler)
	return router
}

// Start 启动 HTTP 服务，ctx 取消后优雅关闭
func Start(ctx context.Context, addr string, h *APIHandler) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      NewRouter(h),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("服务启动", logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("服务关闭中...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h.hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("服务已停止")
	return nil
}
