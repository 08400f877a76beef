package chat

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// inbound is a client event waiting for the hub loop.
type inbound struct {
	client   *Client
	envelope Envelope
}

// relayed is a server-originated event (execution updates) waiting for the
// hub loop.
type relayed struct {
	event string
	data  any
}

// Hub routes every event through a single goroutine: connects, disconnects,
// client events and relayed updates are all serialized on its loop, so the
// registry needs no locking and broadcast order equals the order in which
// each handler finished its store call.
type Hub struct {
	registry *Registry
	store    MessageStore
	cache    HistoryCache
	log      zerolog.Logger

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	relay      chan relayed

	// done is closed when the run loop exits, so connection goroutines that
	// outlive it never block handing their client back.
	done chan struct{}

	// now is swapped out in tests that pin synthetic timestamps.
	now func() time.Time
}

// NewHub builds a hub. cache may be nil when no history cache is in play.
func NewHub(store MessageStore, cache HistoryCache, log zerolog.Logger) *Hub {
	return &Hub{
		registry:   NewRegistry(),
		store:      store,
		cache:      cache,
		log:        log,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound, 64),
		relay:      make(chan relayed, 64),
		done:       make(chan struct{}),
		now:        time.Now,
	}
}

// Relay queues a server-originated event for broadcast. Safe to call from
// any goroutine; the hub loop does the fan-out.
func (h *Hub) Relay(event string, data any) {
	h.relay <- relayed{event: event, data: data}
}

// Run drives the hub until ctx is canceled, then closes every connection.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.registry.Each(func(c *Client) {
				h.registry.Remove(c)
				close(c.send)
			})
			return ctx.Err()

		case c := <-h.register:
			count := h.registry.Add(c)
			h.log.Info().Str("conn_id", c.id).Int("connections", count).Msg("client connected")
			h.broadcast(EventUsersCount, count)

		case c := <-h.unregister:
			if count, ok := h.registry.Remove(c); ok {
				close(c.send)
				h.log.Info().Str("conn_id", c.id).Int("connections", count).Msg("client disconnected")
				h.broadcast(EventUsersCount, count)
			}

		case in := <-h.inbound:
			h.dispatch(ctx, in)

		case ev := <-h.relay:
			h.broadcast(ev.event, ev.data)
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, in inbound) {
	switch in.envelope.Event {
	case EventChatMessage:
		var p SendPayload
		if err := json.Unmarshal(in.envelope.Data, &p); err != nil {
			h.log.Debug().Err(err).Msg("malformed chat:message payload")
			return
		}
		h.handleSend(ctx, p)

	case EventMessageHype:
		var p HypePayload
		if err := json.Unmarshal(in.envelope.Data, &p); err != nil {
			h.log.Debug().Err(err).Msg("malformed message:hype payload")
			return
		}
		h.handleHype(ctx, p.MessageID)

	case EventMessageDelete:
		var p DeletePayload
		if err := json.Unmarshal(in.envelope.Data, &p); err != nil {
			h.log.Debug().Err(err).Msg("malformed message:delete payload")
			return
		}
		h.handleDelete(ctx, p.MessageID)

	default:
		h.log.Debug().Str("event", in.envelope.Event).Msg("unknown event dropped")
	}
}

// handleSend persists the message and broadcasts the stored row. When the
// insert fails the message is still broadcast with a synthesized id and
// timestamp, so the live stream can diverge from the durable log.
func (h *Hub) handleSend(ctx context.Context, p SendPayload) SendOutcome {
	msg, err := h.store.InsertMessage(ctx, p)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", p.UserID).Msg("saving message failed, broadcasting synthetic record")
		now := h.now()
		out := SendOutcome{
			Synthetic: true,
			Message: Message{
				ID:        now.UnixMilli(),
				Content:   p.Content,
				UserID:    p.UserID,
				UserName:  p.UserName,
				UserImage: p.UserImage,
				CreatedAt: now,
			},
		}
		h.broadcast(EventChatMessage, out.Message)
		return out
	}

	out := SendOutcome{Message: *msg}
	h.invalidateHistory(ctx)
	h.broadcast(EventChatMessage, out.Message)
	return out
}

// handleHype bumps the counter by the fixed increment. A miss is silent:
// no broadcast, no error back to the sender.
func (h *Hub) handleHype(ctx context.Context, messageID int64) {
	hypes, err := h.store.AddHypes(ctx, messageID, HypeIncrement)
	if errors.Is(err, ErrNotFound) {
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("message_id", messageID).Msg("updating hypes failed")
		return
	}
	h.invalidateHistory(ctx)
	h.broadcast(EventMessageHype, HypeUpdate{MessageID: messageID, Hypes: hypes})
}

// handleDelete removes the row without any ownership check and notifies
// everyone. Deleting an already-deleted id broadcasts nothing.
func (h *Hub) handleDelete(ctx context.Context, messageID int64) {
	deleted, err := h.store.DeleteMessage(ctx, messageID)
	if err != nil {
		h.log.Error().Err(err).Int64("message_id", messageID).Msg("deleting message failed")
		return
	}
	if !deleted {
		return
	}
	h.invalidateHistory(ctx)
	h.broadcast(EventMessageDelete, DeletePayload{MessageID: messageID})
}

// invalidateHistory drops the cached history after a successful write. The
// synthetic send path skips this: nothing durable changed.
func (h *Hub) invalidateHistory(ctx context.Context) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Delete(ctx, historyCacheKey); err != nil {
		h.log.Warn().Err(err).Msg("history cache invalidation failed")
	}
}

// broadcast fans one event out to every open connection. A client whose send
// buffer is full is dropped on the spot; if that happens the new count is
// broadcast afterwards so observers stay consistent.
func (h *Hub) broadcast(event string, data any) {
	frame, err := EncodeEvent(event, data)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("encoding event failed")
		return
	}

	dropped := 0
	h.registry.Each(func(c *Client) {
		select {
		case c.send <- frame:
		default:
			h.registry.Remove(c)
			close(c.send)
			h.log.Warn().Str("conn_id", c.id).Msg("slow client dropped")
			dropped++
		}
	})

	if dropped > 0 {
		h.broadcast(EventUsersCount, h.registry.Count())
	}
}
