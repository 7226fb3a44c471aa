package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

type ConnectRequest struct {
	UserID      string
	ServiceName string
	UsePKCE     *bool
	RedirectURI string
	Scopes      []string
	Metadata    map[string]any
}

type ReconnectRequest struct {
	UserID        string
	IntegrationID string
	UsePKCE       *bool
	RedirectURI   string
	Scopes        []string
}

// ConnectResult carries the authorization URL for the callback to complete.
// Interactive is set when an authorization surface was driven.
type ConnectResult struct {
	Authorization AuthorizationResponse
	Interactive   *InteractiveResult
}

// Connect starts a connection. With a surface configured it also waits for the
// user to finish; the code always arrives through CompleteConnect.
func (s *Service) Connect(ctx context.Context, req ConnectRequest) (result ConnectResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"user_id":      strings.TrimSpace(req.UserID),
		"service_name": normalizeServiceName(req.ServiceName),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "connect", err, fields)
	}()

	result, err = s.connect(ctx, AuthorizationRequest{
		UserID:      req.UserID,
		ServiceName: req.ServiceName,
		UsePKCE:     req.UsePKCE,
		RedirectURI: req.RedirectURI,
		Scopes:      req.Scopes,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return result, s.mapError(err)
	}
	return result, nil
}

func (s *Service) connect(ctx context.Context, req AuthorizationRequest) (ConnectResult, error) {
	auth, err := s.buildAuthorizationRequest(ctx, req)
	if err != nil {
		return ConnectResult{}, err
	}
	result := ConnectResult{Authorization: auth}
	if s.surface == nil {
		return result, nil
	}
	interactive, err := s.beginInteractiveAuthorization(ctx, auth)
	result.Interactive = &interactive
	if err != nil {
		return result, err
	}
	return result, nil
}

// CompleteConnect finishes the exchange and upserts the integration as active.
// A failed exchange never leaves an active record; a failed reconnect marks
// the existing record failed.
func (s *Service) CompleteConnect(ctx context.Context, req ExchangeRequest) (record IntegrationRecord, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"user_id":      strings.TrimSpace(req.UserID),
		"service_name": normalizeServiceName(req.ServiceName),
	}
	defer func() {
		if record.ID != "" {
			fields["integration_id"] = record.ID
		}
		s.observeOperation(ctx, startedAt, "complete_connect", err, fields)
	}()

	out, err := s.completeExchange(ctx, req)
	recordExchangeFields(fields, out)
	flow := out.flow
	if err != nil {
		if flow.Reconnect && flow.IntegrationID != "" {
			if updateErr := s.integrationStore.UpdateStatus(ctx, flow.IntegrationID, IntegrationStatusFailed, truncateBody(err.Error())); updateErr != nil {
				err = multierr.Append(err, storageFailure("update_integration_status", updateErr))
			}
		}
		return IntegrationRecord{}, s.mapError(err)
	}

	record, err = s.integrationStore.Upsert(ctx, UpsertIntegrationInput{
		UserID:      flow.UserID,
		ServiceName: flow.ServiceName,
		Status:      IntegrationStatusActive,
	})
	if err != nil {
		return IntegrationRecord{}, s.mapError(storageFailure("upsert_integration", err))
	}
	fields["reconnect"] = flow.Reconnect

	s.runPostConnect(ctx, record, flow.Reconnect)
	return record, nil
}

// Disconnect removes the integration and its credentials. Both deletions are
// attempted and their errors combined.
func (s *Service) Disconnect(ctx context.Context, userID string, integrationID string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"user_id":        strings.TrimSpace(userID),
		"integration_id": strings.TrimSpace(integrationID),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "disconnect", err, fields)
	}()

	record, err := s.ownedIntegration(ctx, userID, integrationID)
	if err != nil {
		return s.mapError(err)
	}
	fields["service_name"] = record.ServiceName

	var combined error
	if deleteErr := s.integrationStore.Delete(ctx, record.ID); deleteErr != nil {
		combined = multierr.Append(combined, storageFailure("delete_integration", deleteErr))
	}
	if clearErr := s.credentialStore.Clear(ctx, NewCredentialKey(record.UserID, record.ServiceName)); clearErr != nil {
		combined = multierr.Append(combined, storageFailure("clear_credentials", clearErr))
	}
	if discardErr := s.flowStateStore.Discard(ctx, record.UserID, record.ServiceName); discardErr != nil {
		s.logWarn(ctx, "discard flow state on disconnect failed", map[string]any{
			"integration_id": record.ID, "error": discardErr.Error(),
		})
	}
	return s.mapError(combined)
}

// Reconnect flips the integration to pending and starts a new flow tagged so
// completion takes the reconnect path.
func (s *Service) Reconnect(ctx context.Context, req ReconnectRequest) (result ConnectResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"user_id":        strings.TrimSpace(req.UserID),
		"integration_id": strings.TrimSpace(req.IntegrationID),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "reconnect", err, fields)
	}()

	record, err := s.ownedIntegration(ctx, req.UserID, req.IntegrationID)
	if err != nil {
		return ConnectResult{}, s.mapError(err)
	}
	fields["service_name"] = record.ServiceName
	previous, previousError := record.Status, record.LastError
	if err := record.TransitionTo(IntegrationStatusPending, "", s.clock()); err != nil {
		return ConnectResult{}, s.mapError(err)
	}
	if err := s.integrationStore.UpdateStatus(ctx, record.ID, IntegrationStatusPending, ""); err != nil {
		return ConnectResult{}, s.mapError(storageFailure("update_integration_status", err))
	}

	result, err = s.connect(ctx, AuthorizationRequest{
		UserID:        record.UserID,
		ServiceName:   record.ServiceName,
		UsePKCE:       req.UsePKCE,
		RedirectURI:   req.RedirectURI,
		Scopes:        req.Scopes,
		Reconnect:     true,
		IntegrationID: record.ID,
	})
	if err != nil {
		// A reconnect that fails to start leaves the integration as it was.
		if previous != IntegrationStatusPending {
			if restoreErr := s.integrationStore.UpdateStatus(context.WithoutCancel(ctx), record.ID, previous, previousError); restoreErr != nil {
				err = multierr.Append(err, storageFailure("update_integration_status", restoreErr))
			}
		}
		return result, s.mapError(err)
	}
	return result, nil
}

func (s *Service) ListForUser(ctx context.Context, userID string) (records []IntegrationRecord, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"user_id": strings.TrimSpace(userID)}
	defer func() {
		fields["count"] = len(records)
		s.observeOperation(ctx, startedAt, "list_integrations", err, fields)
	}()

	userID, err = requireUser(userID)
	if err != nil {
		return nil, s.mapError(err)
	}
	records, err = s.integrationStore.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.mapError(storageFailure("list_integrations", err))
	}
	return records, nil
}

func (s *Service) GetIntegration(ctx context.Context, userID string, integrationID string) (IntegrationRecord, error) {
	record, err := s.ownedIntegration(ctx, userID, integrationID)
	if err != nil {
		return IntegrationRecord{}, s.mapError(err)
	}
	return record, nil
}

// RefreshIntegration refreshes the integration's credentials. A failure
// moves the record to failed; it is never deleted.
func (s *Service) RefreshIntegration(ctx context.Context, userID string, serviceName string) (record IntegrationRecord, err error) {
	startedAt := time.Now().UTC()
	key := NewCredentialKey(userID, serviceName)
	fields := map[string]any{
		"user_id":      key.UserID,
		"service_name": key.ServiceName,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "refresh_integration", err, fields)
	}()

	if err := key.Validate(); err != nil {
		return IntegrationRecord{}, s.mapError(err)
	}
	record, found, err := s.integrationStore.FindByUserService(ctx, key.UserID, key.ServiceName)
	if err != nil {
		return IntegrationRecord{}, s.mapError(storageFailure("find_integration", err))
	}
	if !found {
		return IntegrationRecord{}, s.mapError(fmt.Errorf("%w: %s", ErrIntegrationNotFound, key))
	}
	fields["integration_id"] = record.ID

	if _, err := s.refreshTokens(ctx, key); err != nil {
		if record.Status != IntegrationStatusFailed {
			if updateErr := s.integrationStore.UpdateStatus(ctx, record.ID, IntegrationStatusFailed, truncateBody(err.Error())); updateErr != nil {
				err = multierr.Append(err, storageFailure("update_integration_status", updateErr))
			}
		}
		return IntegrationRecord{}, s.mapError(err)
	}
	if record.Status != IntegrationStatusActive {
		if err := s.integrationStore.UpdateStatus(ctx, record.ID, IntegrationStatusActive, ""); err != nil {
			return IntegrationRecord{}, s.mapError(storageFailure("update_integration_status", err))
		}
	}
	record, err = s.integrationStore.Get(ctx, record.ID)
	if err != nil {
		return IntegrationRecord{}, s.mapError(storageFailure("get_integration", err))
	}
	return record, nil
}

// UpdateConfiguration merges patch into the integration's configuration map.
func (s *Service) UpdateConfiguration(ctx context.Context, userID string, integrationID string, patch map[string]any) (record IntegrationRecord, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"user_id":        strings.TrimSpace(userID),
		"integration_id": strings.TrimSpace(integrationID),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "update_configuration", err, fields)
	}()

	current, err := s.ownedIntegration(ctx, userID, integrationID)
	if err != nil {
		return IntegrationRecord{}, s.mapError(err)
	}
	record, err = s.integrationStore.UpdateConfiguration(ctx, current.ID, patch)
	if err != nil {
		return IntegrationRecord{}, s.mapError(storageFailure("update_configuration", err))
	}
	return record, nil
}

// ownedIntegration hides records belonging to other users behind not found.
func (s *Service) ownedIntegration(ctx context.Context, userID string, integrationID string) (IntegrationRecord, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return IntegrationRecord{}, err
	}
	integrationID = strings.TrimSpace(integrationID)
	if integrationID == "" {
		return IntegrationRecord{}, fmt.Errorf("core: integration id is required")
	}
	record, err := s.integrationStore.Get(ctx, integrationID)
	if err != nil {
		if errors.Is(err, ErrIntegrationNotFound) {
			return IntegrationRecord{}, fmt.Errorf("%w: id %q", ErrIntegrationNotFound, integrationID)
		}
		return IntegrationRecord{}, storageFailure("get_integration", err)
	}
	if record.UserID != userID {
		return IntegrationRecord{}, fmt.Errorf("%w: id %q", ErrIntegrationNotFound, integrationID)
	}
	return record, nil
}
