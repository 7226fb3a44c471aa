package integrations

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-integrations/core"
)

type ProviderPack struct {
	Name      string
	Providers []core.Provider
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

// ExtensionHooks collects what downstream modules contribute before the
// service is built: provider packs, per operation type executors, and
// command/query bundles.
type ExtensionHooks struct {
	mu sync.RWMutex

	providerPacks map[string]ProviderPack
	executors     map[string]core.Executor
	bundles       map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		providerPacks: map[string]ProviderPack{},
		executors:     map[string]core.Executor{},
		bundles:       map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterProviderPack(pack ProviderPack) error {
	if h == nil {
		return fmt.Errorf("integrations: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("integrations: provider pack name is required")
	}
	if len(pack.Providers) == 0 {
		return fmt.Errorf("integrations: provider pack %q has no providers", name)
	}

	normalized := ProviderPack{
		Name:      name,
		Providers: append([]core.Provider(nil), pack.Providers...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.providerPacks[name]; exists {
		return fmt.Errorf("integrations: provider pack %q already registered", name)
	}
	h.providerPacks[name] = normalized
	return nil
}

// RegisterExecutor routes operations of operationType to executor.
func (h *ExtensionHooks) RegisterExecutor(operationType string, executor core.Executor) error {
	if h == nil {
		return fmt.Errorf("integrations: extension hooks are nil")
	}
	operationType = strings.TrimSpace(operationType)
	if operationType == "" {
		return fmt.Errorf("integrations: executor operation type is required")
	}
	if executor == nil {
		return fmt.Errorf("integrations: executor for %q is required", operationType)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.executors[operationType]; exists {
		return fmt.Errorf("integrations: executor for %q already registered", operationType)
	}
	h.executors[operationType] = executor
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("integrations: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("integrations: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("integrations: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("integrations: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

func (h *ExtensionHooks) ApplyProviderPacks(registry core.Registry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("integrations: registry is required")
	}

	for _, pack := range h.ProviderPacks() {
		for _, provider := range pack.Providers {
			if provider == nil {
				return fmt.Errorf("integrations: provider pack %q contains nil provider", pack.Name)
			}
			if err := registry.Register(provider); err != nil {
				return err
			}
		}
	}
	return nil
}

// Executor returns an executor that routes by operation type and falls back
// to fallback for unregistered types. With no routes it returns fallback.
func (h *ExtensionHooks) Executor(fallback core.Executor) core.Executor {
	if h == nil {
		return fallback
	}
	h.mu.RLock()
	routes := make(map[string]core.Executor, len(h.executors))
	for operationType, executor := range h.executors {
		routes[operationType] = executor
	}
	h.mu.RUnlock()
	if len(routes) == 0 {
		return fallback
	}
	return &ExecutorRouter{routes: routes, fallback: fallback}
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("integrations: command/query service is required")
	}

	names := h.BundleNames()
	h.mu.RLock()
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) ProviderPacks() []ProviderPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.providerPacks))
	for name := range h.providerPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ProviderPack, 0, len(names))
	for _, name := range names {
		pack := h.providerPacks[name]
		out = append(out, ProviderPack{
			Name:      pack.Name,
			Providers: append([]core.Provider(nil), pack.Providers...),
		})
	}
	return out
}

func (h *ExtensionHooks) ExecutorTypes() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	types := make([]string, 0, len(h.executors))
	for operationType := range h.executors {
		types = append(types, operationType)
	}
	sort.Strings(types)
	return types
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExecutorRouter picks an executor by ExecutionRequest.Type.
type ExecutorRouter struct {
	routes   map[string]core.Executor
	fallback core.Executor
}

func (r *ExecutorRouter) Execute(ctx context.Context, req core.ExecutionRequest) error {
	if r == nil {
		return core.ErrExecutorNotConfigured
	}
	if executor, ok := r.routes[req.Type]; ok {
		return executor.Execute(ctx, req)
	}
	if r.fallback == nil {
		return fmt.Errorf("%w: no executor for operation type %q", core.ErrExecutorNotConfigured, req.Type)
	}
	return r.fallback.Execute(ctx, req)
}

var _ core.Executor = (*ExecutorRouter)(nil)
