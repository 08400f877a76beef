package chat

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	historyLimit    = 50
	historyCacheKey = "chat:history"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HistoryCache caches history reads. The hub deletes the key on every
// successful write so /api/messages never serves a stale window longer than
// the gap to the next read.
type HistoryCache interface {
	Get(ctx context.Context, key string, v any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type Handler struct {
	hub        *Hub
	store      MessageStore
	cache      HistoryCache
	historyTTL time.Duration
	log        zerolog.Logger
}

func NewHandler(hub *Hub, store MessageStore, cache HistoryCache, historyTTL time.Duration, log zerolog.Logger) *Handler {
	return &Handler{
		hub:        hub,
		store:      store,
		cache:      cache,
		historyTTL: historyTTL,
		log:        log,
	}
}

// ServeWs upgrades the request and hands the connection to the hub. No
// authentication here: anything that can reach the endpoint can join, and
// identity on chat events is whatever the client claims.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newClient(uuid.NewString(), h.hub, conn, h.log)
	h.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// GetChatHistory returns the most recent messages, newest first. Reads go
// through a short-lived cache that the hub invalidates on every write.
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var messages []Message
	hit, err := h.cache.Get(ctx, historyCacheKey, &messages)
	if err != nil {
		h.log.Warn().Err(err).Msg("history cache read failed")
	}

	if !hit {
		messages, err = h.store.RecentMessages(ctx, historyLimit)
		if err != nil {
			h.log.Error().Err(err).Msg("loading history failed")
			http.Error(w, "failed to load messages", http.StatusInternalServerError)
			return
		}
		if err := h.cache.Set(ctx, historyCacheKey, messages, h.historyTTL); err != nil {
			h.log.Warn().Err(err).Msg("history cache write failed")
		}
	}

	if messages == nil {
		messages = []Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(messages); err != nil {
		h.log.Warn().Err(err).Msg("writing history response failed")
	}
}
