package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-integrations/core"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the SQL-backed stores from a go-persistence-bun
// client or a bare *bun.DB and serves them as a core.StoreProvider.
type RepositoryFactory struct {
	db    *bun.DB
	codec core.CredentialCodec

	integrationStore  *IntegrationStore
	credentialStore   *CredentialStore
	operationStore    core.OperationStore
	cancellationStore *CancellationStore
	operationWrapper  func(core.OperationStore) core.OperationStore
}

type FactoryOption func(*RepositoryFactory)

// WithCredentialCodec swaps the payload codec, for example for an
// encrypting codec. JSONCredentialCodec is used otherwise.
func WithCredentialCodec(codec core.CredentialCodec) FactoryOption {
	return func(f *RepositoryFactory) {
		if codec != nil {
			f.codec = codec
		}
	}
}

// WithOperationStoreWrapper decorates the operation store after it is
// built, which is how CachedOperationStore is layered in.
func WithOperationStoreWrapper(wrap func(core.OperationStore) core.OperationStore) FactoryOption {
	return func(f *RepositoryFactory) {
		f.operationWrapper = wrap
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{codec: core.JSONCredentialCodec{}}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.integrationStore != nil && f.operationStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) IntegrationStore() core.IntegrationStore {
	if f == nil || f.integrationStore == nil {
		return nil
	}
	return f.integrationStore
}

func (f *RepositoryFactory) CredentialStore() core.CredentialStore {
	if f == nil || f.credentialStore == nil {
		return nil
	}
	return f.credentialStore
}

func (f *RepositoryFactory) OperationStore() core.OperationStore {
	if f == nil {
		return nil
	}
	return f.operationStore
}

func (f *RepositoryFactory) CancellationStore() core.CancellationStore {
	if f == nil || f.cancellationStore == nil {
		return nil
	}
	return f.cancellationStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	integrationStore, err := NewIntegrationStore(f.db)
	if err != nil {
		return err
	}
	credentialStore, err := NewCredentialStore(f.db, f.codec)
	if err != nil {
		return err
	}
	operationStore, err := NewOperationStore(f.db)
	if err != nil {
		return err
	}
	cancellationStore, err := NewCancellationStore(f.db)
	if err != nil {
		return err
	}

	f.integrationStore = integrationStore
	f.credentialStore = credentialStore
	f.cancellationStore = cancellationStore
	f.operationStore = operationStore
	if f.operationWrapper != nil {
		if wrapped := f.operationWrapper(operationStore); wrapped != nil {
			f.operationStore = wrapped
		}
	}
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
