package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"BucketFM/core/album"
	"BucketFM/core/library"
	"BucketFM/core/player"
	"BucketFM/core/trackmeta"
	"BucketFM/logger"
	"BucketFM/model"
	"BucketFM/storage"
)

// LibraryStore 曲库对象列表
type LibraryStore interface {
	ListObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, *storage.BucketStats, error)
	LocatorFor(key string) string
}

// TagCacheClearer 共享标签缓存
type TagCacheClearer interface {
	Clear(ctx context.Context) (int, error)
}

// Deps APIHandler 依赖，Library / TagCache / Queue / Manager 可以为 nil
type Deps struct {
	Deriver  *trackmeta.Deriver
	Resolver *album.Resolver
	Library  LibraryStore
	TagCache TagCacheClearer
	Queue    *library.Queue
	Manager  *player.Manager
	Hub      *Hub
}

// APIHandler 处理所有 API 请求
type APIHandler struct {
	deriver  *trackmeta.Deriver
	resolver *album.Resolver
	library  LibraryStore
	tagCache TagCacheClearer
	queue    *library.Queue
	manager  *player.Manager
	hub      *Hub
}

// NewAPIHandler 创建 API 处理器，并把播放事件转发到 WebSocket
func NewAPIHandler(d Deps) *APIHandler {
	h := &APIHandler{
		deriver:  d.Deriver,
		resolver: d.Resolver,
		library:  d.Library,
		tagCache: d.TagCache,
		queue:    d.Queue,
		manager:  d.Manager,
		hub:      d.Hub,
	}
	if h.deriver == nil {
		h.deriver = trackmeta.Default()
	}
	if h.hub == nil {
		h.hub = NewHub()
	}
	if h.manager != nil {
		h.manager.Subscribe(h.hub.PublishPlayerEvent)
	}
	return h
}

// TrackMetadataResponse 曲目元数据
type TrackMetadataResponse struct {
	Locator         string              `json:"locator"`
	AlbumURL        string              `json:"albumUrl,omitempty"`
	TrackNumberText string              `json:"trackNumberText,omitempty"`
	Metadata        model.TrackMetadata `json:"metadata"`
}

// LibraryEntry 曲库中的一个对象
type LibraryEntry struct {
	Key         string `json:"key"`
	Locator     string `json:"locator"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// GetTrackMetadataHandler GET /api/tracks/metadata?url=...&skipTags=1
func (h *APIHandler) GetTrackMetadataHandler(w http.ResponseWriter, r *http.Request) {
	locator := r.URL.Query().Get("url")
	if locator == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	var opts []trackmeta.DeriveOption
	if queryBool(r, "skipTags") {
		opts = append(opts, trackmeta.SkipTags())
	}

	parsed := trackmeta.Parse(locator)
	writeJSON(w, http.StatusOK, TrackMetadataResponse{
		Locator:         locator,
		AlbumURL:        parsed.AlbumURL,
		TrackNumberText: parsed.TrackNumberText,
		Metadata:        h.deriver.Derive(r.Context(), locator, opts...),
	})
}

// GetAlbumTracksHandler GET /api/albums/tracks?current=...&album=...
func (h *APIHandler) GetAlbumTracksHandler(w http.ResponseWriter, r *http.Request) {
	current := r.URL.Query().Get("current")
	if current == "" {
		writeError(w, http.StatusBadRequest, "current is required")
		return
	}

	tracks := h.resolver.GetAllAlbumTracks(r.Context(), r.URL.Query().Get("album"), current)
	writeJSON(w, http.StatusOK, map[string]any{"tracks": tracks})
}

// GetRemainingTracksHandler GET /api/albums/remaining?current=...&album=...
func (h *APIHandler) GetRemainingTracksHandler(w http.ResponseWriter, r *http.Request) {
	current := r.URL.Query().Get("current")
	if current == "" {
		writeError(w, http.StatusBadRequest, "current is required")
		return
	}

	tracks, err := h.resolver.GetRemainingAlbumTracks(r.Context(), r.URL.Query().Get("album"), current)
	if err != nil {
		logger.Error("获取剩余曲目失败", logger.String("current", current), logger.ErrorField(err))
		writeError(w, http.StatusBadGateway, "failed to list album")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracks": tracks})
}

// GetLibraryHandler GET /api/library?prefix=...
func (h *APIHandler) GetLibraryHandler(w http.ResponseWriter, r *http.Request) {
	if h.library == nil {
		writeError(w, http.StatusServiceUnavailable, "library not configured")
		return
	}

	prefix := r.URL.Query().Get("prefix")
	objects, stats, err := h.library.ListObjects(r.Context(), prefix)
	if err != nil {
		logger.Error("列出曲库失败", logger.String("prefix", prefix), logger.ErrorField(err))
		writeError(w, http.StatusBadGateway, "failed to list library")
		return
	}

	entries := make([]LibraryEntry, 0, len(objects))
	for _, obj := range objects {
		entries = append(entries, LibraryEntry{
			Key:         obj.Key,
			Locator:     h.library.LocatorFor(obj.Key),
			Size:        obj.Size,
			ContentType: storage.InferContentType(obj.Key),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"prefix":  prefix,
		"objects": entries,
		"stats":   stats,
	})
}

// GetCacheStatsHandler GET /api/cache/stats
func (h *APIHandler) GetCacheStatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deriver.Stats())
}

// ClearTagCacheHandler DELETE /api/cache/tags
func (h *APIHandler) ClearTagCacheHandler(w http.ResponseWriter, r *http.Request) {
	h.deriver.Clear()

	removed := 0
	if h.tagCache != nil {
		n, err := h.tagCache.Clear(r.Context())
		if err != nil {
			logger.Error("清空标签缓存失败", logger.ErrorField(err))
			writeError(w, http.StatusBadGateway, "failed to clear shared tag cache")
			return
		}
		removed = n
	}
	logger.Info("标签缓存已清空", logger.Int("shared", removed))
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true, "sharedEntries": removed})
}

// PlayerStatusHandler GET /api/player/status
func (h *APIHandler) PlayerStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !h.playbackEnabled(w) {
		return
	}
	writeJSON(w, http.StatusOK, h.queue.NowPlaying())
}

// PlayerCommandHandler POST /api/player/{command}
func (h *APIHandler) PlayerCommandHandler(command MessageType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.playbackEnabled(w) {
			return
		}

		var data CommandData
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}

		// 播放会在响应返回后继续，不能随请求一起取消
		if err := h.runCommand(context.WithoutCancel(r.Context()), command, data); err != nil {
			writeError(w, commandStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, h.queue.NowPlaying())
	}
}

// runCommand 执行播放控制指令，HTTP 和 WebSocket 共用
func (h *APIHandler) runCommand(ctx context.Context, command MessageType, data CommandData) error {
	switch command {
	case MsgTypePlay:
		if data.Locator == "" {
			return errBadCommand("locator is required")
		}
		return h.queue.Play(ctx, data.Locator)
	case MsgTypePause:
		h.manager.Pause()
		return nil
	case MsgTypeResume:
		return h.manager.Play(ctx)
	case MsgTypeNext:
		return h.queue.Next(ctx)
	case MsgTypePrev:
		return h.queue.Previous(ctx)
	case MsgTypeSeek:
		return h.manager.Seek(data.Position)
	default:
		return errBadCommand("unknown command " + string(command))
	}
}

type badCommandError string

func (e badCommandError) Error() string { return string(e) }

func errBadCommand(msg string) error { return badCommandError(msg) }

func commandStatus(err error) int {
	var bad badCommandError
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.Is(err, library.ErrEndOfAlbum), errors.Is(err, player.ErrNoSource):
		return http.StatusConflict
	case errors.Is(err, player.ErrDestroyed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (h *APIHandler) playbackEnabled(w http.ResponseWriter) bool {
	if h.queue == nil || h.manager == nil {
		writeError(w, http.StatusServiceUnavailable, "playback disabled")
		return false
	}
	return true
}

// WebSocketHandler GET /ws/player
func (h *APIHandler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := h.hub.NewClient(conn)
	if h.queue != nil {
		client.Send(MsgTypeNowPlaying, h.queue.NowPlaying())
	}

	go client.WritePump()
	// 连接的生命周期独立于升级请求
	client.ReadPump(context.WithoutCancel(r.Context()), h.handleWSMessage)
}

func (h *APIHandler) handleWSMessage(ctx context.Context, c *Client, msg *WSMessage) {
	if h.queue == nil || h.manager == nil {
		c.Send(MsgTypeError, map[string]string{"error": "playback disabled"})
		return
	}

	var data CommandData
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.Send(MsgTypeError, map[string]string{"error": "invalid command data"})
			return
		}
	}

	if err := h.runCommand(ctx, msg.Type, data); err != nil {
		c.Send(MsgTypeError, map[string]string{"error": err.Error()})
		return
	}
	h.hub.Broadcast(MsgTypeNowPlaying, h.queue.NowPlaying())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("写入响应失败", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryBool(r *http.Request, key string) bool {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
