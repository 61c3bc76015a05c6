package model

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownProvider is returned by NewFromConfig for an unregistered name.
var ErrUnknownProvider = errors.New("unknown model provider")

// Factory builds a ChatModel from an API key and model name. An empty model
// name selects the provider's default.
type Factory func(apiKey, modelName string) (ChatModel, error)

var (
	providersMu sync.RWMutex
	providers   = make(map[string]Factory)
)

// RegisterProvider makes a provider available to NewFromConfig. It panics
// if name is empty, factory is nil or name is already registered; it is
// meant to be called from a provider package's init.
func RegisterProvider(name string, factory Factory) {
	providersMu.Lock()
	defer providersMu.Unlock()

	if name == "" || factory == nil {
		panic("model: RegisterProvider needs a name and a factory")
	}
	if _, dup := providers[name]; dup {
		panic("model: RegisterProvider called twice for provider " + name)
	}
	providers[name] = factory
}

// Providers returns the registered provider names, sorted.
func Providers() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewFromConfig builds a ChatModel using the provider registered as provider.
func NewFromConfig(provider, apiKey, modelName string) (ChatModel, error) {
	providersMu.RLock()
	factory, ok := providers[provider]
	providersMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %v)", ErrUnknownProvider, provider, Providers())
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%s: API key is required", provider)
	}
	m, err := factory(apiKey, modelName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", provider, err)
	}
	return m, nil
}
