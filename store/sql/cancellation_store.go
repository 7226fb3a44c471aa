package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type CancellationStore struct {
	db   *bun.DB
	repo repository.Repository[*cancellationRecord]
}

func NewCancellationStore(db *bun.DB) (*CancellationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*cancellationRecord](db, cancellationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid cancellation repository wiring: %w", err)
		}
	}
	return &CancellationStore{db: db, repo: repo}, nil
}

func (s *CancellationStore) Create(ctx context.Context, record core.CancellationRecord) (core.CancellationRecord, error) {
	if s == nil || s.repo == nil {
		return core.CancellationRecord{}, fmt.Errorf("sqlstore: cancellation store is not configured")
	}
	record.OperationID = strings.TrimSpace(record.OperationID)
	if record.OperationID == "" {
		return core.CancellationRecord{}, fmt.Errorf("sqlstore: cancellation operation id is required")
	}
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	if record.RequestedAt.IsZero() {
		record.RequestedAt = time.Now().UTC()
	}
	created, err := s.repo.Create(ctx, newCancellationRecord(record))
	if err != nil {
		return core.CancellationRecord{}, err
	}
	return created.toDomain(), nil
}

func (s *CancellationStore) FindByOperation(ctx context.Context, operationID string) ([]core.CancellationRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: cancellation store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("operation_id", "=", strings.TrimSpace(operationID)),
		repository.OrderBy("requested_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.CancellationRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
