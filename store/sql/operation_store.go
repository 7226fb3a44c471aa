package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/uptrace/bun"
)

var terminalOperationStatuses = []string{
	string(core.OperationStatusCompleted),
	string(core.OperationStatusFailed),
	string(core.OperationStatusCancelled),
}

// OperationStore persists tracked operations. Update is a conditional write
// that never touches a row already in a terminal status.
type OperationStore struct {
	db *bun.DB
}

func NewOperationStore(db *bun.DB) (*OperationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &OperationStore{db: db}, nil
}

func (s *OperationStore) Create(ctx context.Context, record core.OperationRecord) (core.OperationRecord, error) {
	if s == nil || s.db == nil {
		return core.OperationRecord{}, fmt.Errorf("sqlstore: operation store is not configured")
	}
	record.ID = strings.TrimSpace(record.ID)
	if record.ID == "" {
		return core.OperationRecord{}, fmt.Errorf("sqlstore: operation id is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.UpdatedAt = record.CreatedAt

	row := newOperationRecord(record)
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return core.OperationRecord{}, fmt.Errorf("%w: id %q", core.ErrOperationExists, record.ID)
		}
		return core.OperationRecord{}, err
	}
	return row.toDomain(), nil
}

func (s *OperationStore) Get(ctx context.Context, id string) (core.OperationRecord, bool, error) {
	if s == nil || s.db == nil {
		return core.OperationRecord{}, false, fmt.Errorf("sqlstore: operation store is not configured")
	}
	row, err := findOperation(ctx, s.db, id)
	if err != nil || row == nil {
		return core.OperationRecord{}, false, err
	}
	return row.toDomain(), true, nil
}

func (s *OperationStore) Update(ctx context.Context, record core.OperationRecord) (core.OperationRecord, error) {
	if s == nil || s.db == nil {
		return core.OperationRecord{}, fmt.Errorf("sqlstore: operation store is not configured")
	}
	id := strings.TrimSpace(record.ID)
	metadata, err := json.Marshal(copyAnyMap(record.Metadata))
	if err != nil {
		return core.OperationRecord{}, fmt.Errorf("sqlstore: encode operation metadata: %w", err)
	}
	now := time.Now().UTC()

	var out core.OperationRecord
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		result, err := tx.NewUpdate().
			Model((*operationRecord)(nil)).
			Set("status = ?", string(record.Status)).
			Set("metadata = ?", string(metadata)).
			Set("updated_at = ?", now).
			Where("id = ?", id).
			Where("status NOT IN (?)", bun.In(terminalOperationStatuses)).
			Exec(ctx)
		if err != nil {
			return err
		}
		current, err := findOperation(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("%w: id %q", core.ErrOperationNotFound, id)
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			return &core.AlreadyFinalError{OperationID: id, CurrentStatus: core.OperationStatus(current.Status)}
		}
		out = current.toDomain()
		return nil
	})
	if err != nil {
		return core.OperationRecord{}, err
	}
	return out, nil
}

func (s *OperationStore) ListByUser(ctx context.Context, userID string, operationType string) ([]core.OperationRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: operation store is not configured")
	}
	rows := make([]*operationRecord, 0)
	query := s.db.NewSelect().
		Model(&rows).
		Where("?TableAlias.user_id = ?", strings.TrimSpace(userID)).
		OrderExpr("?TableAlias.created_at ASC")
	if operationType = strings.TrimSpace(operationType); operationType != "" {
		query = query.Where("?TableAlias.type = ?", operationType)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.OperationRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func findOperation(ctx context.Context, db bun.IDB, id string) (*operationRecord, error) {
	row := &operationRecord{}
	err := db.NewSelect().
		Model(row).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row, nil
}
