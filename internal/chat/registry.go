package chat

// Registry owns the set of currently-open connections. It is not
// goroutine-safe: only the hub loop touches it, so it is single-writer by
// construction.
type Registry struct {
	clients map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[*Client]struct{})}
}

// Add inserts a client and returns the new connection count.
func (r *Registry) Add(c *Client) int {
	r.clients[c] = struct{}{}
	return len(r.clients)
}

// Remove deletes a client and returns the new count. ok is false when the
// client was not registered (already dropped by the hub).
func (r *Registry) Remove(c *Client) (count int, ok bool) {
	if _, found := r.clients[c]; !found {
		return len(r.clients), false
	}
	delete(r.clients, c)
	return len(r.clients), true
}

func (r *Registry) Count() int {
	return len(r.clients)
}

// Each calls fn for every registered client. fn may remove the client it
// is passed; deleting during range is safe.
func (r *Registry) Each(fn func(*Client)) {
	for c := range r.clients {
		fn(c)
	}
}
