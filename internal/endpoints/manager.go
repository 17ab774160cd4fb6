package endpoints

import (
	"fmt"
	"nanoqa-pipeline/internal/models"
	"nanoqa-pipeline/internal/pkg/logger"
	"sync"
)

// EndpointManager is a registry of named nanopub endpoints. The first
// registered endpoint becomes the default unless a later registration
// claims it explicitly.
type EndpointManager struct {
	mu          sync.RWMutex
	endpoints   map[string]NanopubEndpoint
	defaultName string
	logger      *logger.Logger
}

func NewEndpointManager(log *logger.Logger) *EndpointManager {
	return &EndpointManager{
		endpoints: make(map[string]NanopubEndpoint),
		logger:    log,
	}
}

func (manager *EndpointManager) Register(name string, endpoint NanopubEndpoint, isDefault bool) {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	manager.endpoints[name] = endpoint
	if isDefault || manager.defaultName == "" {
		manager.defaultName = name
	}

	manager.logger.Info("Registered nanopub endpoint",
		"name", name,
		"is_default", isDefault)
}

// Get returns the endpoint registered under name, or the default endpoint
// when name is empty.
func (manager *EndpointManager) Get(name string) (NanopubEndpoint, error) {
	manager.mu.RLock()
	defer manager.mu.RUnlock()

	endpointName := name
	if endpointName == "" {
		endpointName = manager.defaultName
	}

	endpoint, found := manager.endpoints[endpointName]
	if endpointName == "" || !found {
		return nil, models.ErrEndpointNotFound.WithMetadata("endpoint", endpointName)
	}

	return endpoint, nil
}

func (manager *EndpointManager) DefaultEndpoint() string {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	return manager.defaultName
}

func (manager *EndpointManager) List() []string {
	manager.mu.RLock()
	defer manager.mu.RUnlock()

	names := make([]string, 0, len(manager.endpoints))
	for name := range manager.endpoints {
		names = append(names, name)
	}
	return names
}

// CloseAll closes every registered endpoint and collects their errors.
func (manager *EndpointManager) CloseAll() error {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	var errs []error
	for name, endpoint := range manager.endpoints {
		if err := endpoint.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close endpoint %s: %w", name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("endpoint shutdown errors: %v", errs)
	}
	return nil
}
