package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-integrations/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// CredentialStore keeps the encoded token material for each user and
// service. Writes replace the previous payload in place.
type CredentialStore struct {
	db    *bun.DB
	repo  repository.Repository[*credentialRecord]
	codec core.CredentialCodec
}

func NewCredentialStore(db *bun.DB, codec core.CredentialCodec) (*CredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	if codec == nil {
		codec = core.JSONCredentialCodec{}
	}
	repo := repository.NewRepository[*credentialRecord](db, credentialHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid credential repository wiring: %w", err)
		}
	}
	return &CredentialStore{db: db, repo: repo, codec: codec}, nil
}

func (s *CredentialStore) Store(ctx context.Context, key core.CredentialKey, tokens core.TokenMaterial) error {
	if s == nil || s.db == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	key = core.NewCredentialKey(key.UserID, key.ServiceName)
	if err := key.Validate(); err != nil {
		return err
	}
	payload, err := s.codec.Encode(tokens)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		result, updateErr := tx.NewUpdate().
			Model((*credentialRecord)(nil)).
			Set("payload = ?", payload).
			Set("payload_format = ?", s.codec.Format()).
			Set("payload_version = ?", s.codec.Version()).
			Set("expires_at = ?", cloneTimePointer(tokens.ExpiresAt)).
			Set("updated_at = ?", now).
			Where("user_id = ?", key.UserID).
			Where("service_name = ?", key.ServiceName).
			Exec(ctx)
		if updateErr != nil {
			return updateErr
		}
		if affected, _ := result.RowsAffected(); affected > 0 {
			return nil
		}
		_, createErr := s.repo.CreateTx(ctx, tx, newCredentialRecord(key, s.codec, payload, tokens.ExpiresAt, now))
		return createErr
	})
}

func (s *CredentialStore) Load(ctx context.Context, key core.CredentialKey) (core.TokenMaterial, bool, error) {
	if s == nil || s.db == nil {
		return core.TokenMaterial{}, false, fmt.Errorf("sqlstore: credential store is not configured")
	}
	key = core.NewCredentialKey(key.UserID, key.ServiceName)
	if err := key.Validate(); err != nil {
		return core.TokenMaterial{}, false, err
	}
	record := &credentialRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", key.UserID).
		Where("?TableAlias.service_name = ?", key.ServiceName).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.TokenMaterial{}, false, nil
		}
		return core.TokenMaterial{}, false, err
	}
	if record.PayloadFormat != s.codec.Format() {
		return core.TokenMaterial{}, false, fmt.Errorf(
			"sqlstore: credential payload format %q is not readable by codec %q",
			record.PayloadFormat,
			s.codec.Format(),
		)
	}
	tokens, err := s.codec.Decode(record.Payload)
	if err != nil {
		return core.TokenMaterial{}, false, err
	}
	return tokens, true, nil
}

func (s *CredentialStore) Clear(ctx context.Context, key core.CredentialKey) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	key = core.NewCredentialKey(key.UserID, key.ServiceName)
	if err := key.Validate(); err != nil {
		return err
	}
	_, err := s.db.NewDelete().
		Model((*credentialRecord)(nil)).
		Where("user_id = ?", key.UserID).
		Where("service_name = ?", key.ServiceName).
		Exec(ctx)
	return err
}
