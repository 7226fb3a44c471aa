package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type integrationRecord struct {
	bun.BaseModel `bun:"table:integrations,alias:itg"`

	ID            string         `bun:"id,pk"`
	UserID        string         `bun:"user_id,notnull"`
	ServiceName   string         `bun:"service_name,notnull"`
	Status        string         `bun:"status,notnull"`
	Configuration map[string]any `bun:"configuration,type:jsonb,notnull"`
	LastError     string         `bun:"last_error,notnull"`
	LastUsedAt    *time.Time     `bun:"last_used_at,nullzero"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type credentialRecord struct {
	bun.BaseModel `bun:"table:integration_credentials,alias:icr"`

	ID             string     `bun:"id,pk"`
	UserID         string     `bun:"user_id,notnull"`
	ServiceName    string     `bun:"service_name,notnull"`
	Payload        []byte     `bun:"payload,notnull"`
	PayloadFormat  string     `bun:"payload_format,notnull"`
	PayloadVersion int        `bun:"payload_version,notnull"`
	ExpiresAt      *time.Time `bun:"expires_at,nullzero"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// operationRecord keys on caller-supplied ids such as "chat-<uuid>", so it
// is written with plain bun queries rather than the uuid-keyed repository.
type operationRecord struct {
	bun.BaseModel `bun:"table:operations,alias:op"`

	ID        string         `bun:"id,pk"`
	UserID    string         `bun:"user_id,notnull"`
	Type      string         `bun:"type,notnull"`
	Status    string         `bun:"status,notnull"`
	Metadata  map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type cancellationRecord struct {
	bun.BaseModel `bun:"table:operation_cancellations,alias:oc"`

	ID          string         `bun:"id,pk"`
	UserID      string         `bun:"user_id,notnull"`
	OperationID string         `bun:"operation_id,notnull"`
	RequestType string         `bun:"request_type,notnull"`
	Status      string         `bun:"status,notnull"`
	Metadata    map[string]any `bun:"metadata,type:jsonb,notnull"`
	RequestedAt time.Time      `bun:"requested_at,nullzero,notnull,default:current_timestamp"`
}
