// Package subscription tracks which downstream clients want which
// (provider, game) pairs.
package subscription

import (
	"cmp"
	"slices"
	"sync"
)

// Key identifies a game on a provider.
type Key struct {
	Provider string
	GameID   string
}

// Registry is a many-to-many index between client ids and keys.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	byClient   map[string]map[Key]struct{}
	byKey      map[Key]map[string]struct{}
	byProvider map[string]map[string]int // provider -> client -> number of keys
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byClient:   make(map[string]map[Key]struct{}),
		byKey:      make(map[Key]map[string]struct{}),
		byProvider: make(map[string]map[string]int),
	}
}

// Add subscribes clientID to key. It reports whether the key gained its first
// client. Adding an existing pair is a no-op returning false.
func (r *Registry) Add(clientID string, key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys, ok := r.byClient[clientID]
	if !ok {
		keys = make(map[Key]struct{})
		r.byClient[clientID] = keys
	}
	if _, dup := keys[key]; dup {
		return false
	}
	keys[key] = struct{}{}

	clients, ok := r.byKey[key]
	if !ok {
		clients = make(map[string]struct{})
		r.byKey[key] = clients
	}
	clients[clientID] = struct{}{}

	perClient, ok := r.byProvider[key.Provider]
	if !ok {
		perClient = make(map[string]int)
		r.byProvider[key.Provider] = perClient
	}
	perClient[clientID]++

	return len(clients) == 1
}

// Remove unsubscribes clientID from key. It reports whether the key lost its
// last client. Removing an absent pair returns false.
func (r *Registry) Remove(clientID string, key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(clientID, key)
}

func (r *Registry) removeLocked(clientID string, key Key) bool {
	keys, ok := r.byClient[clientID]
	if !ok {
		return false
	}
	if _, ok := keys[key]; !ok {
		return false
	}
	delete(keys, key)
	if len(keys) == 0 {
		delete(r.byClient, clientID)
	}

	if perClient := r.byProvider[key.Provider]; perClient != nil {
		perClient[clientID]--
		if perClient[clientID] <= 0 {
			delete(perClient, clientID)
		}
		if len(perClient) == 0 {
			delete(r.byProvider, key.Provider)
		}
	}

	clients := r.byKey[key]
	delete(clients, clientID)
	if len(clients) == 0 {
		delete(r.byKey, key)
		return true
	}
	return false
}

// RemoveClient drops every subscription of clientID and returns the keys that
// no longer have any client.
func (r *Registry) RemoveClient(clientID string) []Key {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := r.byClient[clientID]
	if len(keys) == 0 {
		return nil
	}
	owned := make([]Key, 0, len(keys))
	for k := range keys {
		owned = append(owned, k)
	}

	var emptied []Key
	for _, k := range owned {
		if r.removeLocked(clientID, k) {
			emptied = append(emptied, k)
		}
	}
	sortKeys(emptied)
	return emptied
}

// Clients returns the clients subscribed to key.
func (r *Registry) Clients(key Key) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return setKeys(r.byKey[key])
}

// ProviderClients returns the clients holding at least one subscription on
// provider.
func (r *Registry) ProviderClients(provider string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	perClient := r.byProvider[provider]
	out := make([]string, 0, len(perClient))
	for id := range perClient {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Keys returns the subscriptions held by clientID.
func (r *Registry) Keys(clientID string) []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Key, 0, len(r.byClient[clientID]))
	for k := range r.byClient[clientID] {
		out = append(out, k)
	}
	sortKeys(out)
	return out
}

// Has reports whether clientID is subscribed to key.
func (r *Registry) Has(clientID string, key Key) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byClient[clientID][key]
	return ok
}

// Len returns the number of (client, key) pairs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, keys := range r.byClient {
		n += len(keys)
	}
	return n
}

// KeyCount returns the number of keys with at least one client.
func (r *Registry) KeyCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}

func setKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func sortKeys(keys []Key) {
	slices.SortFunc(keys, func(a, b Key) int {
		return cmp.Or(cmp.Compare(a.Provider, b.Provider), cmp.Compare(a.GameID, b.GameID))
	})
}
