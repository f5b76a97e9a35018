package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/okian/tablewire/internal/config"
	"github.com/okian/tablewire/pkg/logger"
)

// Factory builds an adapter from process configuration.
type Factory func(cfg *config.Config, log logger.Logger) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a factory available under name. It panics on an empty name,
// a nil factory or a duplicate registration.
func Register(name string, f Factory) {
	n := normalize(name)
	if n == "" {
		panic("provider: empty name in Register")
	}
	if f == nil {
		panic("provider: nil factory in Register for " + n)
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[n]; exists {
		panic("provider: duplicate registration for " + n)
	}
	registry[n] = f
}

// FactoryByName looks a factory up case-insensitively.
func FactoryByName(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[normalize(name)]
	return f, ok
}

// AvailableNames lists registered names in sorted order.
func AvailableNames() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build constructs the named adapter.
func Build(name string, cfg *config.Config, log logger.Logger) (Provider, error) {
	f, ok := FactoryByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownProvider, name, AvailableNames())
	}
	return f(cfg, log)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
