package observability

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
)

var (
	observers = map[string]Observer{
		"noop": NoOpObserver{},
		"slog": NewSlogObserver(slog.Default()),
	}
	mutex sync.RWMutex
)

// GetObserver returns a registered observer by name.
// Pre-registered observers: "noop" (NoOpObserver) and "slog" (default logger).
func GetObserver(name string) (Observer, error) {
	mutex.RLock()
	defer mutex.RUnlock()

	obs, exists := observers[name]
	if !exists {
		return nil, fmt.Errorf("unknown observer: %s", name)
	}
	return obs, nil
}

// RegisterObserver adds or replaces a named observer in the global registry.
func RegisterObserver(name string, observer Observer) {
	mutex.Lock()
	defer mutex.Unlock()

	observers[name] = observer
}

// ResolveObservers resolves a comma-separated list of observer names. A
// single name returns that observer; several are wrapped in a MultiObserver.
func ResolveObservers(names string) (Observer, error) {
	var resolved []Observer
	for name := range strings.SplitSeq(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		obs, err := GetObserver(name)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, obs)
	}

	switch len(resolved) {
	case 0:
		return NoOpObserver{}, nil
	case 1:
		return resolved[0], nil
	default:
		return NewMultiObserver(resolved...), nil
	}
}

// ObserverNames lists registered observer names in sorted order.
func ObserverNames() []string {
	mutex.RLock()
	defer mutex.RUnlock()

	return slices.Sorted(maps.Keys(observers))
}
