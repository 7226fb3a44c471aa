package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryCredentialStore_StoreLoadClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCredentialStore()
	key := NewCredentialKey("u1", "github")
	expiresAt := time.Now().UTC().Add(time.Hour)

	if _, found, err := store.Load(ctx, key); err != nil || found {
		t.Fatalf("expected absent credentials, found=%v err=%v", found, err)
	}
	if err := store.Store(ctx, key, TokenMaterial{AccessToken: "a1", ExpiresAt: &expiresAt}); err != nil {
		t.Fatalf("store credentials: %v", err)
	}
	loaded, found, err := store.Load(ctx, NewCredentialKey("u1", "GITHUB"))
	if err != nil || !found {
		t.Fatalf("expected stored credentials, found=%v err=%v", found, err)
	}
	if loaded.AccessToken != "a1" {
		t.Fatalf("expected a1, got %q", loaded.AccessToken)
	}
	*loaded.ExpiresAt = loaded.ExpiresAt.Add(time.Hour)
	again, _, _ := store.Load(ctx, key)
	if !again.ExpiresAt.Equal(expiresAt) {
		t.Fatalf("expected stored value to be isolated from callers")
	}

	if err := store.Clear(ctx, key); err != nil {
		t.Fatalf("clear credentials: %v", err)
	}
	if _, found, _ := store.Load(ctx, key); found {
		t.Fatalf("expected cleared credentials to be absent")
	}
	if err := store.Store(ctx, CredentialKey{ServiceName: "github"}, TokenMaterial{}); !errors.Is(err, ErrInvalidCredentialKey) {
		t.Fatalf("expected invalid key error, got %v", err)
	}
}

func TestMemoryIntegrationStore_UpsertIsUniquePerUserService(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIntegrationStore()

	first, err := store.Upsert(ctx, UpsertIntegrationInput{UserID: "u1", ServiceName: "github", Status: IntegrationStatusPending})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := store.Upsert(ctx, UpsertIntegrationInput{UserID: "u1", ServiceName: "GitHub", Status: IntegrationStatusActive})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same record to be updated")
	}
	if second.Status != IntegrationStatusActive {
		t.Fatalf("expected active, got %s", second.Status)
	}
	records, err := store.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrIntegrationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Delete(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := store.FindByUserService(ctx, "u1", "github"); found {
		t.Fatalf("expected deleted record to be gone")
	}
}

func TestMemoryIntegrationStore_UpdateConfigurationMerges(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIntegrationStore()
	record, err := store.Upsert(ctx, UpsertIntegrationInput{
		UserID:        "u1",
		ServiceName:   "notion",
		Configuration: map[string]any{"workspace": "w1"},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	updated, err := store.UpdateConfiguration(ctx, record.ID, map[string]any{"sync": true})
	if err != nil {
		t.Fatalf("update configuration: %v", err)
	}
	if updated.Configuration["workspace"] != "w1" || updated.Configuration["sync"] != true {
		t.Fatalf("expected merged configuration, got %#v", updated.Configuration)
	}

	usedAt := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	if err := store.TouchLastUsed(ctx, record.ID, usedAt); err != nil {
		t.Fatalf("touch last used: %v", err)
	}
	loaded, err := store.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.LastUsedAt == nil || !loaded.LastUsedAt.Equal(usedAt) {
		t.Fatalf("expected last used timestamp, got %v", loaded.LastUsedAt)
	}
}

func TestMemoryOperationStore_FirstTerminalWriteWins(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryOperationStore()
	if _, err := store.Create(ctx, OperationRecord{ID: "op-1", UserID: "u1", Type: OperationTypeChat, Status: OperationStatusPending}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Create(ctx, OperationRecord{ID: "op-1", UserID: "u1"}); !errors.Is(err, ErrOperationExists) {
		t.Fatalf("expected duplicate id to conflict, got %v", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  []OperationStatus
		rejected int
	)
	for _, status := range []OperationStatus{OperationStatusCompleted, OperationStatusFailed, OperationStatusCancelled} {
		wg.Add(1)
		go func(status OperationStatus) {
			defer wg.Done()
			_, err := store.Update(ctx, OperationRecord{ID: "op-1", Status: status})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, status)
				return
			}
			var finalErr *AlreadyFinalError
			if errors.As(err, &finalErr) {
				rejected++
			}
		}(status)
	}
	wg.Wait()

	if len(winners) != 1 || rejected != 2 {
		t.Fatalf("expected one terminal winner and two rejections, got winners=%v rejected=%d", winners, rejected)
	}
	record, found, err := store.Get(ctx, "op-1")
	if err != nil || !found {
		t.Fatalf("expected record, found=%v err=%v", found, err)
	}
	if record.Status != winners[0] {
		t.Fatalf("expected stored status %s, got %s", winners[0], record.Status)
	}
	if record.UserID != "u1" || record.Type != OperationTypeChat {
		t.Fatalf("expected owner and type to be preserved, got %#v", record)
	}
}

func TestMemoryOperationStore_ListByUserFiltersType(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryOperationStore()
	base := time.Now().UTC()
	for idx, spec := range []struct {
		id, user, kind string
	}{
		{"op-1", "u1", OperationTypeChat},
		{"op-2", "u1", OperationTypeHealthDataSync},
		{"op-3", "u2", OperationTypeChat},
		{"op-4", "u1", OperationTypeChat},
	} {
		if _, err := store.Create(ctx, OperationRecord{
			ID: spec.id, UserID: spec.user, Type: spec.kind, Status: OperationStatusPending,
			CreatedAt: base.Add(time.Duration(idx) * time.Second),
		}); err != nil {
			t.Fatalf("create %s: %v", spec.id, err)
		}
	}

	chats, err := store.ListByUser(ctx, "u1", OperationTypeChat)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(chats) != 2 || chats[0].ID != "op-1" || chats[1].ID != "op-4" {
		t.Fatalf("expected op-1 and op-4 in creation order, got %#v", chats)
	}
	all, _ := store.ListByUser(ctx, "u1", "")
	if len(all) != 3 {
		t.Fatalf("expected three records for u1, got %d", len(all))
	}
	if _, found, err := store.Get(ctx, "missing"); found || err != nil {
		t.Fatalf("expected absent record without error, found=%v err=%v", found, err)
	}
}

func TestMemoryCancellationStore_FindByOperation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCancellationStore()
	created, err := store.Create(ctx, CancellationRecord{UserID: "u1", OperationID: "op-1", RequestType: CancellationRequestType})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.RequestedAt.IsZero() {
		t.Fatalf("expected generated id and timestamp, got %#v", created)
	}
	records, err := store.FindByOperation(ctx, "op-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one cancellation, got %d", len(records))
	}
	if records, _ := store.FindByOperation(ctx, "op-2"); len(records) != 0 {
		t.Fatalf("expected no cancellations for op-2")
	}
}
