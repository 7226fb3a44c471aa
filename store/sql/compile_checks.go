package sqlstore

import "github.com/goliatone/go-integrations/core"

var (
	_ core.IntegrationStore       = (*IntegrationStore)(nil)
	_ core.CredentialStore        = (*CredentialStore)(nil)
	_ core.OperationStore         = (*OperationStore)(nil)
	_ core.OperationStore         = (*CachedOperationStore)(nil)
	_ core.StatusReader           = (*CachedOperationStore)(nil)
	_ core.CancellationStore      = (*CancellationStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
