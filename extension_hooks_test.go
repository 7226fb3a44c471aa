package integrations

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-integrations/core"
)

func TestExtensionHooks_RegisterAndApplyProviderPacks(t *testing.T) {
	hooks := NewExtensionHooks()
	pack := ProviderPack{
		Name: "downstream-pack",
		Providers: []core.Provider{
			extensionProvider{id: "custom_provider"},
		},
	}
	if err := hooks.RegisterProviderPack(pack); err != nil {
		t.Fatalf("register provider pack: %v", err)
	}
	if err := hooks.RegisterProviderPack(pack); err == nil {
		t.Fatalf("expected duplicate provider pack registration error")
	}
	if err := hooks.RegisterProviderPack(ProviderPack{Name: "empty"}); err == nil {
		t.Fatalf("expected empty provider pack error")
	}

	registry := core.NewProviderRegistry()
	if err := hooks.ApplyProviderPacks(registry); err != nil {
		t.Fatalf("apply provider packs: %v", err)
	}
	if _, ok := registry.Get("custom_provider"); !ok {
		t.Fatalf("expected provider pack registration in registry")
	}
}

func TestExtensionHooks_ExecutorRouting(t *testing.T) {
	hooks := NewExtensionHooks()
	var routed, fellBack []string
	chat := core.ExecutorFunc(func(_ context.Context, req core.ExecutionRequest) error {
		routed = append(routed, req.OperationID)
		return nil
	})
	if err := hooks.RegisterExecutor(core.OperationTypeChat, chat); err != nil {
		t.Fatalf("register executor: %v", err)
	}
	if err := hooks.RegisterExecutor(core.OperationTypeChat, chat); err == nil {
		t.Fatalf("expected duplicate executor registration error")
	}
	if err := hooks.RegisterExecutor("", chat); err == nil {
		t.Fatalf("expected blank operation type error")
	}
	if types := hooks.ExecutorTypes(); len(types) != 1 || types[0] != core.OperationTypeChat {
		t.Fatalf("unexpected executor types %v", types)
	}

	fallback := core.ExecutorFunc(func(_ context.Context, req core.ExecutionRequest) error {
		fellBack = append(fellBack, req.OperationID)
		return nil
	})
	executor := hooks.Executor(fallback)
	ctx := context.Background()
	if err := executor.Execute(ctx, core.ExecutionRequest{OperationID: "chat-1", Type: core.OperationTypeChat}); err != nil {
		t.Fatalf("execute chat: %v", err)
	}
	if err := executor.Execute(ctx, core.ExecutionRequest{OperationID: "sync-1", Type: core.OperationTypeHealthDataSync}); err != nil {
		t.Fatalf("execute sync: %v", err)
	}
	if len(routed) != 1 || routed[0] != "chat-1" {
		t.Fatalf("expected chat to be routed, got %v", routed)
	}
	if len(fellBack) != 1 || fellBack[0] != "sync-1" {
		t.Fatalf("expected sync to use the fallback, got %v", fellBack)
	}

	noFallback := hooks.Executor(nil)
	err := noFallback.Execute(ctx, core.ExecutionRequest{OperationID: "x", Type: "unknown"})
	if !errors.Is(err, core.ErrExecutorNotConfigured) {
		t.Fatalf("expected ErrExecutorNotConfigured, got %v", err)
	}

	if NewExtensionHooks().Executor(fallback) == nil {
		t.Fatalf("expected fallback when no routes are registered")
	}
}

func TestExtensionHooks_CommandQueryBundles(t *testing.T) {
	hooks := NewExtensionHooks()
	if err := hooks.RegisterCommandQueryBundle("operations_bundle", func(service CommandQueryService) (any, error) {
		return map[string]any{
			"create_fn": service.CreateOperation,
			"status_fn": service.GetOperationStatus,
		}, nil
	}); err != nil {
		t.Fatalf("register bundle: %v", err)
	}
	if err := hooks.RegisterCommandQueryBundle("operations_bundle", func(CommandQueryService) (any, error) { return nil, nil }); err == nil {
		t.Fatalf("expected duplicate bundle registration error")
	}

	bundles, err := hooks.BuildCommandQueryBundles(newFacadeService(t))
	if err != nil {
		t.Fatalf("build bundles: %v", err)
	}
	if len(bundles) != 1 {
		t.Fatalf("expected one bundle, got %d", len(bundles))
	}
	if _, ok := bundles["operations_bundle"]; !ok {
		t.Fatalf("expected operations_bundle entry in built bundles")
	}
	if names := hooks.BundleNames(); len(names) != 1 || names[0] != "operations_bundle" {
		t.Fatalf("unexpected bundle names %v", names)
	}
}

type extensionProvider struct {
	id string
}

func (p extensionProvider) ID() string { return p.id }

func (extensionProvider) UsesPKCE() bool { return true }

func (extensionProvider) DefaultRedirectURI() string { return "http://localhost/callback" }

func (extensionProvider) DefaultScopes() []string { return []string{"read"} }

func (p extensionProvider) AuthorizationURL(req core.AuthorizationURLRequest) (string, error) {
	return "https://example.test/auth?state=" + req.State, nil
}

func (extensionProvider) ExchangeCode(context.Context, core.CodeExchangeRequest) (core.TokenResponse, error) {
	return core.TokenResponse{AccessToken: "access", ExpiresIn: 3600}, nil
}

func (extensionProvider) RefreshToken(context.Context, string) (core.TokenResponse, error) {
	return core.TokenResponse{AccessToken: "access-2", ExpiresIn: 3600}, nil
}
