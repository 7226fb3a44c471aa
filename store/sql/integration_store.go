package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// IntegrationStore persists one integration row per user and service.
type IntegrationStore struct {
	db   *bun.DB
	repo repository.Repository[*integrationRecord]
}

func NewIntegrationStore(db *bun.DB) (*IntegrationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*integrationRecord](db, integrationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid integration repository wiring: %w", err)
		}
	}
	return &IntegrationStore{db: db, repo: repo}, nil
}

func (s *IntegrationStore) Upsert(ctx context.Context, in core.UpsertIntegrationInput) (core.IntegrationRecord, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.IntegrationRecord{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	key := core.NewCredentialKey(in.UserID, in.ServiceName)
	if err := key.Validate(); err != nil {
		return core.IntegrationRecord{}, err
	}
	if in.Status == "" {
		in.Status = core.IntegrationStatusActive
	}
	in.LastError = strings.TrimSpace(in.LastError)
	now := time.Now().UTC()

	var out core.IntegrationRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findIntegrationTx(ctx, tx, key)
		if err != nil {
			return err
		}
		if record == nil {
			created, createErr := s.repo.CreateTx(ctx, tx, newIntegrationRecord(in, key, now))
			if createErr == nil {
				out = created.toDomain()
				return nil
			}
			if !isUniqueViolation(createErr) {
				return createErr
			}
			record, err = findIntegrationTx(ctx, tx, key)
			if err != nil {
				return err
			}
			if record == nil {
				return createErr
			}
		}

		record.Status = string(in.Status)
		record.LastError = in.LastError
		if in.Configuration != nil {
			record.Configuration = copyAnyMap(in.Configuration)
		}
		record.UpdatedAt = now
		if _, err := tx.NewUpdate().
			Model(record).
			Column("status", "last_error", "configuration", "updated_at").
			WherePK().
			Exec(ctx); err != nil {
			return err
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.IntegrationRecord{}, err
	}
	return out, nil
}

func (s *IntegrationStore) Get(ctx context.Context, id string) (core.IntegrationRecord, error) {
	if s == nil || s.db == nil {
		return core.IntegrationRecord{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	record := &integrationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.IntegrationRecord{}, fmt.Errorf("%w: id %q", core.ErrIntegrationNotFound, id)
		}
		return core.IntegrationRecord{}, err
	}
	return record.toDomain(), nil
}

func (s *IntegrationStore) FindByUserService(ctx context.Context, userID string, serviceName string) (core.IntegrationRecord, bool, error) {
	if s == nil || s.db == nil {
		return core.IntegrationRecord{}, false, fmt.Errorf("sqlstore: integration store is not configured")
	}
	record, err := findIntegrationTx(ctx, s.db, core.NewCredentialKey(userID, serviceName))
	if err != nil {
		return core.IntegrationRecord{}, false, err
	}
	if record == nil {
		return core.IntegrationRecord{}, false, nil
	}
	return record.toDomain(), true, nil
}

func (s *IntegrationStore) ListByUser(ctx context.Context, userID string) ([]core.IntegrationRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: integration store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("user_id", "=", strings.TrimSpace(userID)),
		repository.OrderBy("service_name ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.IntegrationRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *IntegrationStore) UpdateStatus(ctx context.Context, id string, status core.IntegrationStatus, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: integration store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*integrationRecord)(nil)).
		Set("status = ?", string(status)).
		Set("last_error = ?", strings.TrimSpace(reason)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(result, fmt.Errorf("%w: id %q", core.ErrIntegrationNotFound, id))
}

func (s *IntegrationStore) UpdateConfiguration(ctx context.Context, id string, configuration map[string]any) (core.IntegrationRecord, error) {
	if s == nil || s.db == nil {
		return core.IntegrationRecord{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	var out core.IntegrationRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &integrationRecord{}
		if err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.id = ?", strings.TrimSpace(id)).
			Limit(1).
			Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: id %q", core.ErrIntegrationNotFound, id)
			}
			return err
		}
		record.Configuration = mergeAnyMap(record.Configuration, configuration)
		record.UpdatedAt = time.Now().UTC()
		if _, err := tx.NewUpdate().
			Model(record).
			Column("configuration", "updated_at").
			WherePK().
			Exec(ctx); err != nil {
			return err
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.IntegrationRecord{}, err
	}
	return out, nil
}

func (s *IntegrationStore) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: integration store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*integrationRecord)(nil)).
		Set("last_used_at = ?", at.UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(result, fmt.Errorf("%w: id %q", core.ErrIntegrationNotFound, id))
}

func (s *IntegrationStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: integration store is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*integrationRecord)(nil)).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(result, fmt.Errorf("%w: id %q", core.ErrIntegrationNotFound, id))
}

func findIntegrationTx(ctx context.Context, db bun.IDB, key core.CredentialKey) (*integrationRecord, error) {
	record := &integrationRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", key.UserID).
		Where("?TableAlias.service_name = ?", key.ServiceName).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func requireAffected(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
