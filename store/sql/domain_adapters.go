package sqlstore

import (
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/google/uuid"
)

func newIntegrationRecord(in core.UpsertIntegrationInput, key core.CredentialKey, now time.Time) *integrationRecord {
	return &integrationRecord{
		ID:            uuid.NewString(),
		UserID:        key.UserID,
		ServiceName:   key.ServiceName,
		Status:        string(in.Status),
		Configuration: copyAnyMap(in.Configuration),
		LastError:     in.LastError,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (r *integrationRecord) toDomain() core.IntegrationRecord {
	if r == nil {
		return core.IntegrationRecord{}
	}
	return core.IntegrationRecord{
		ID:            r.ID,
		UserID:        r.UserID,
		ServiceName:   r.ServiceName,
		Status:        core.IntegrationStatus(r.Status),
		Credentials:   core.NewCredentialKey(r.UserID, r.ServiceName),
		Configuration: copyAnyMap(r.Configuration),
		LastError:     r.LastError,
		LastUsedAt:    cloneTimePointer(r.LastUsedAt),
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

func newCredentialRecord(key core.CredentialKey, codec core.CredentialCodec, payload []byte, expiresAt *time.Time, now time.Time) *credentialRecord {
	return &credentialRecord{
		ID:             uuid.NewString(),
		UserID:         key.UserID,
		ServiceName:    key.ServiceName,
		Payload:        append([]byte(nil), payload...),
		PayloadFormat:  codec.Format(),
		PayloadVersion: codec.Version(),
		ExpiresAt:      cloneTimePointer(expiresAt),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func newOperationRecord(in core.OperationRecord) *operationRecord {
	return &operationRecord{
		ID:        in.ID,
		UserID:    in.UserID,
		Type:      in.Type,
		Status:    string(in.Status),
		Metadata:  copyAnyMap(in.Metadata),
		CreatedAt: in.CreatedAt.UTC(),
		UpdatedAt: in.UpdatedAt.UTC(),
	}
}

func (r *operationRecord) toDomain() core.OperationRecord {
	if r == nil {
		return core.OperationRecord{}
	}
	return core.OperationRecord{
		ID:        r.ID,
		UserID:    r.UserID,
		Type:      r.Type,
		Status:    core.OperationStatus(r.Status),
		Metadata:  copyAnyMap(r.Metadata),
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func newCancellationRecord(in core.CancellationRecord) *cancellationRecord {
	return &cancellationRecord{
		ID:          in.ID,
		UserID:      in.UserID,
		OperationID: in.OperationID,
		RequestType: in.RequestType,
		Status:      in.Status,
		Metadata:    copyAnyMap(in.Metadata),
		RequestedAt: in.RequestedAt.UTC(),
	}
}

func (r *cancellationRecord) toDomain() core.CancellationRecord {
	if r == nil {
		return core.CancellationRecord{}
	}
	return core.CancellationRecord{
		ID:          r.ID,
		UserID:      r.UserID,
		OperationID: r.OperationID,
		RequestType: r.RequestType,
		Status:      r.Status,
		Metadata:    copyAnyMap(r.Metadata),
		RequestedAt: r.RequestedAt.UTC(),
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func mergeAnyMap(base map[string]any, patch map[string]any) map[string]any {
	out := copyAnyMap(base)
	for key, value := range patch {
		out[key] = value
	}
	return out
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
