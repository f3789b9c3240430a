package tunnelflight

import (
	"fmt"
	"sort"
	"sync"
)

// Registry owns the clients of every configured account, keyed by an id the
// caller chooses. It replaces any process wide client table, whoever needs
// clients is handed the registry explicitly.
type Registry struct {
	mutex   sync.Mutex
	clients map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Add creates a client for id. Adding an id twice is an error, Remove it first.
func (r *Registry) Add(id string, opts ClientOptions) (*Client, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	_, exists := r.clients[id]
	if exists {
		return nil, fmt.Errorf("account %q is already registered", id)
	}
	client, err := NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("account %q: %w", id, err)
	}
	r.clients[id] = client
	return client, nil
}

func (r *Registry) Get(id string) (*Client, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	client, ok := r.clients[id]
	return client, ok
}

// Remove closes and forgets the client for id, removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mutex.Lock()
	client, ok := r.clients[id]
	delete(r.clients, id)
	r.mutex.Unlock()

	if ok {
		client.Close()
	}
}

// IDs returns the registered ids, sorted.
func (r *Registry) IDs() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close removes every client, the registry can be reused afterwards.
func (r *Registry) Close() {
	r.mutex.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.mutex.Unlock()

	for _, client := range clients {
		client.Close()
	}
}
