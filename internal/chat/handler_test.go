package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memCache is an in-memory HistoryCache; TTLs are ignored, which is enough
// for asserting hit/miss behavior.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string, v any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, v)
}

func (c *memCache) Set(_ context.Context, key string, v any, _ time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = data
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// countingStore wraps a MessageStore and counts history reads.
type countingStore struct {
	MessageStore
	mu    sync.Mutex
	reads int
}

func (s *countingStore) RecentMessages(ctx context.Context, limit int) ([]Message, error) {
	s.mu.Lock()
	s.reads++
	s.mu.Unlock()
	return s.MessageStore.RecentMessages(ctx, limit)
}

func newTestServer(t *testing.T, store MessageStore) *httptest.Server {
	t.Helper()
	historyCache := newMemCache()
	hub := NewHub(store, historyCache, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	handler := NewHandler(hub, store, historyCache, time.Minute, zerolog.Nop())
	r := chi.NewRouter()
	r.Get("/api/socket", handler.ServeWs)
	r.Get("/api/messages", handler.GetChatHistory)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialSocket(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/socket"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := DecodeEvent(frame)
	require.NoError(t, err)
	return env
}

func writeEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	frame, err := EncodeEvent(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

// TestSocketScenario walks the full happy path over real websockets: two
// clients connect, one sends, the other hypes, the first deletes, and a
// replayed hype on the deleted id produces nothing.
func TestSocketScenario(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store)

	a := dialSocket(t, srv)
	env := readEvent(t, a)
	require.Equal(t, EventUsersCount, env.Event)
	assert.Equal(t, 1, decodeData[int](t, env))

	b := dialSocket(t, srv)
	for _, conn := range []*websocket.Conn{a, b} {
		env := readEvent(t, conn)
		require.Equal(t, EventUsersCount, env.Event)
		assert.Equal(t, 2, decodeData[int](t, env))
	}

	writeEvent(t, a, EventChatMessage, SendPayload{Content: "hi", UserID: "u1", UserName: "Alice"})
	var id int64
	for _, conn := range []*websocket.Conn{a, b} {
		env := readEvent(t, conn)
		require.Equal(t, EventChatMessage, env.Event)
		msg := decodeData[Message](t, env)
		assert.Equal(t, "hi", msg.Content)
		assert.NotZero(t, msg.ID)
		id = msg.ID
	}

	writeEvent(t, b, EventMessageHype, HypePayload{MessageID: id})
	for _, conn := range []*websocket.Conn{a, b} {
		env := readEvent(t, conn)
		require.Equal(t, EventMessageHype, env.Event)
		update := decodeData[HypeUpdate](t, env)
		assert.Equal(t, id, update.MessageID)
		assert.Equal(t, HypeIncrement, update.Hypes)
	}

	writeEvent(t, a, EventMessageDelete, DeletePayload{MessageID: id})
	for _, conn := range []*websocket.Conn{a, b} {
		env := readEvent(t, conn)
		require.Equal(t, EventMessageDelete, env.Event)
		assert.Equal(t, id, decodeData[DeletePayload](t, env).MessageID)
	}

	// A hype on the deleted id emits nothing; the next event anyone sees is
	// the probe message sent afterwards.
	writeEvent(t, b, EventMessageHype, HypePayload{MessageID: id})
	writeEvent(t, a, EventChatMessage, SendPayload{Content: "probe", UserID: "u1", UserName: "Alice"})
	for _, conn := range []*websocket.Conn{a, b} {
		env := readEvent(t, conn)
		require.Equal(t, EventChatMessage, env.Event)
		assert.Equal(t, "probe", decodeData[Message](t, env).Content)
	}
}

func TestDisconnectUpdatesCount(t *testing.T) {
	srv := newTestServer(t, newFakeStore())

	a := dialSocket(t, srv)
	readEvent(t, a) // count 1

	b := dialSocket(t, srv)
	readEvent(t, a) // count 2
	readEvent(t, b) // count 2

	require.NoError(t, b.Close())
	env := readEvent(t, a)
	require.Equal(t, EventUsersCount, env.Event)
	assert.Equal(t, 1, decodeData[int](t, env))
}

func TestGetChatHistoryUsesCache(t *testing.T) {
	store := &countingStore{MessageStore: newFakeStore()}
	historyCache := newMemCache()
	hub := NewHub(store, historyCache, zerolog.Nop())
	handler := NewHandler(hub, store, historyCache, time.Minute, zerolog.Nop())

	hub.registry.Add(newTestClient("a", 16))
	hub.handleSend(context.Background(), SendPayload{Content: "hello", UserID: "u1", UserName: "Alice"})

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.GetChatHistory(rec, httptest.NewRequest(http.MethodGet, "/api/messages", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var messages []Message
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &messages))
		require.Len(t, messages, 1)
		assert.Equal(t, "hello", messages[0].Content)
	}

	assert.Equal(t, 1, store.reads, "second read must be served from cache")
}

// readHistory is a helper for the invalidation test below.
func readHistory(t *testing.T, handler *Handler) []Message {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.GetChatHistory(rec, httptest.NewRequest(http.MethodGet, "/api/messages", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var messages []Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &messages))
	return messages
}

func TestWritesInvalidateHistoryCache(t *testing.T) {
	store := newFakeStore()
	historyCache := newMemCache()
	hub := NewHub(store, historyCache, zerolog.Nop())
	handler := NewHandler(hub, store, historyCache, time.Minute, zerolog.Nop())
	hub.registry.Add(newTestClient("a", 16))
	ctx := context.Background()

	first := hub.handleSend(ctx, SendPayload{Content: "first", UserID: "u1", UserName: "Alice"})
	require.Len(t, readHistory(t, handler), 1)

	// A send right after a read must be visible on the next read, not
	// hidden behind the cached copy for the rest of the TTL.
	hub.handleSend(ctx, SendPayload{Content: "second", UserID: "u1", UserName: "Alice"})
	messages := readHistory(t, handler)
	require.Len(t, messages, 2)
	assert.Equal(t, "second", messages[0].Content)

	hub.handleDelete(ctx, first.Message.ID)
	messages = readHistory(t, handler)
	require.Len(t, messages, 1)
	assert.Equal(t, "second", messages[0].Content)

	hub.handleHype(ctx, messages[0].ID)
	messages = readHistory(t, handler)
	require.Len(t, messages, 1)
	assert.Equal(t, HypeIncrement, messages[0].Hypes)
}
