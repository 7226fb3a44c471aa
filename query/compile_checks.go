package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-integrations/core"
)

var (
	_ gocmd.Querier[ListIntegrationsMessage, []core.IntegrationRecord] = (*ListIntegrationsQuery)(nil)
	_ gocmd.Querier[GetIntegrationMessage, core.IntegrationRecord]     = (*GetIntegrationQuery)(nil)
	_ gocmd.Querier[GetValidAccessTokenMessage, AccessTokenResult]     = (*GetValidAccessTokenQuery)(nil)
	_ gocmd.Querier[GetOperationMessage, core.OperationRecord]         = (*GetOperationQuery)(nil)
	_ gocmd.Querier[GetOperationStatusMessage, OperationStatusResult]  = (*GetOperationStatusQuery)(nil)
	_ gocmd.Querier[ListOperationsMessage, []core.OperationRecord]     = (*ListOperationsQuery)(nil)
	_ gocmd.Querier[IsCancellationRequestedMessage, bool]              = (*IsCancellationRequestedQuery)(nil)

	_ ReadingService = (core.IntegrationService)(nil)
)
