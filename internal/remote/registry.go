package remote

import (
	"fmt"

	"github.com/forattini-dev/vaulter-sub005/pkg/store"
)

// Factory creates a store instance from its inline configuration map.
type Factory func(name string, config map[string]interface{}) (store.Store, error)

// Registry manages store creation and registration.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a registry with the built-in store types.
func NewRegistry() *Registry {
	registry := &Registry{
		factories: make(map[string]Factory),
	}

	registry.RegisterFactory("memory", NewMemoryStoreFactory)
	registry.RegisterFactory("aws.ssm", NewSSMStoreFactory)
	registry.RegisterFactory("aws.secretsmanager", NewSecretsManagerStoreFactory)
	registry.RegisterFactory("rest", NewRESTStoreFactory)

	return registry
}

// RegisterFactory registers a factory for a store type.
func (r *Registry) RegisterFactory(storeType string, factory Factory) {
	r.factories[storeType] = factory
}

// CreateStore creates a store instance of the given type.
func (r *Registry) CreateStore(name, storeType string, config map[string]interface{}) (store.Store, error) {
	factory, exists := r.factories[storeType]
	if !exists {
		return nil, fmt.Errorf("unknown remote store type: %s", storeType)
	}
	return factory(name, config)
}

// SupportedTypes returns the registered store types.
func (r *Registry) SupportedTypes() []string {
	types := make([]string, 0, len(r.factories))
	for storeType := range r.factories {
		types = append(types, storeType)
	}
	return types
}

// IsSupported checks whether a store type is registered.
func (r *Registry) IsSupported(storeType string) bool {
	_, exists := r.factories[storeType]
	return exists
}

// NewMemoryStoreFactory creates the in-memory store type.
func NewMemoryStoreFactory(name string, config map[string]interface{}) (store.Store, error) {
	return NewMemoryStore(name), nil
}
