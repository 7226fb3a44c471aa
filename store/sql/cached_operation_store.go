package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-integrations/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const operationCacheKeyPrefix = "go-integrations::operation::v1"

var errOperationAbsent = errors.New("sqlstore: operation absent")

// CachedOperationStore serves repeated status reads from cache. Writes made
// through it invalidate the entry; writes from other processes become
// visible once the cache TTL lapses.
type CachedOperationStore struct {
	base  core.OperationStore
	cache repositorycache.CacheService
}

func NewCachedOperationStore(base core.OperationStore, cacheService repositorycache.CacheService) (*CachedOperationStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base operation store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: operation cache service is required")
	}
	return &CachedOperationStore{base: base, cache: cacheService}, nil
}

// OperationCacheKey is go-integrations::operation::v1::<id> with the id
// URL-path escaped.
func OperationCacheKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("sqlstore: operation id is required")
	}
	return operationCacheKeyPrefix + "::" + url.PathEscape(id), nil
}

func (s *CachedOperationStore) Create(ctx context.Context, record core.OperationRecord) (core.OperationRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.OperationRecord{}, fmt.Errorf("sqlstore: cached operation store is not configured")
	}
	created, err := s.base.Create(ctx, record)
	if err != nil {
		return core.OperationRecord{}, err
	}
	return created, s.invalidate(ctx, created.ID)
}

func (s *CachedOperationStore) Get(ctx context.Context, id string) (core.OperationRecord, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.OperationRecord{}, false, fmt.Errorf("sqlstore: cached operation store is not configured")
	}
	cacheKey, err := OperationCacheKey(id)
	if err != nil {
		return core.OperationRecord{}, false, err
	}
	record, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.OperationRecord, error) {
		fetched, ok, fetchErr := s.base.Get(ctx, id)
		if fetchErr != nil {
			return core.OperationRecord{}, fetchErr
		}
		if !ok {
			return core.OperationRecord{}, errOperationAbsent
		}
		return fetched.Clone(), nil
	})
	if err != nil {
		if errors.Is(err, errOperationAbsent) {
			return core.OperationRecord{}, false, nil
		}
		return core.OperationRecord{}, false, err
	}
	return record.Clone(), true, nil
}

func (s *CachedOperationStore) Update(ctx context.Context, record core.OperationRecord) (core.OperationRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.OperationRecord{}, fmt.Errorf("sqlstore: cached operation store is not configured")
	}
	updated, err := s.base.Update(ctx, record)
	if invalidateErr := s.invalidate(ctx, record.ID); invalidateErr != nil && err == nil {
		return core.OperationRecord{}, invalidateErr
	}
	if err != nil {
		return core.OperationRecord{}, err
	}
	return updated, nil
}

func (s *CachedOperationStore) ListByUser(ctx context.Context, userID string, operationType string) ([]core.OperationRecord, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached operation store is not configured")
	}
	return s.base.ListByUser(ctx, userID, operationType)
}

func (s *CachedOperationStore) GetOperationStatus(ctx context.Context, id string) (core.OperationStatus, bool, error) {
	record, ok, err := s.Get(ctx, id)
	if err != nil || !ok {
		return "", ok, err
	}
	return record.Status, true, nil
}

func (s *CachedOperationStore) invalidate(ctx context.Context, id string) error {
	cacheKey, err := OperationCacheKey(id)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}
