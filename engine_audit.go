package vapor

import (
	"context"
	"errors"
	"time"

	"github.com/vaporhq/vapor/store"
)

const (
	auditEventLoginSuccess        = "login_success"
	auditEventSilentLoginSuccess  = "silent_login_success"
	auditEventLoginFailure        = "login_failure"
	auditEventLoginOldSession     = "login_old_session"
	auditEventLoginMissingDetails = "login_missing_details"
	auditEventLoginRateLimited    = "login_rate_limited"
	auditEventCaptchaChallenged   = "captcha_challenged"
	auditEventEmailGuardRequired  = "email_guard_required"
	auditEventAccountCreated      = "account_created"
	auditEventEnrollStarted       = "authenticator_enroll_started"
	auditEventEnrollFailure       = "authenticator_enroll_failure"
	auditEventFinalizeSuccess     = "authenticator_finalized"
	auditEventFinalizeFailure     = "authenticator_finalize_failure"
	auditEventRevokeSuccess       = "authenticator_revoked"
	auditEventRevokeFailure       = "authenticator_revoke_failure"
	auditEventIdleStateChanged    = "idle_state_changed"
)

// AuditErrorCode is the normalized error label stamped into audit events.
type AuditErrorCode string

const (
	auditErrMissingDetails AuditErrorCode = "missing_details"
	auditErrOldSession     AuditErrorCode = "old_session"
	auditErrRateLimited    AuditErrorCode = "rate_limited"
	auditErrRemote         AuditErrorCode = "remote_rejected"
	auditErrNotLoggedIn    AuditErrorCode = "not_logged_in"
	auditErrNoMainAccount  AuditErrorCode = "no_main_account"
	auditErrNoSecret       AuditErrorCode = "no_shared_secret"
	auditErrStore          AuditErrorCode = "store_unavailable"
	auditErrInternal       AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	account string,
	steamID string,
	attemptID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Account:   account,
		SteamID:   steamID,
		AttemptID: attemptID,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var remote *RemoteError
	var challenge *ChallengeError

	switch {
	case errors.Is(err, ErrMissingDetails):
		return auditErrMissingDetails
	case errors.Is(err, ErrOldSession):
		return auditErrOldSession
	case errors.Is(err, ErrLoginThrottled):
		return auditErrRateLimited
	case errors.Is(err, ErrNotLoggedIn):
		return auditErrNotLoggedIn
	case errors.Is(err, store.ErrNoMainAccount):
		return auditErrNoMainAccount
	case errors.Is(err, ErrNoSharedSecret),
		errors.Is(err, ErrNoPendingEnrollment),
		errors.Is(err, ErrNoRevocationCode):
		return auditErrNoSecret
	case errors.Is(err, store.ErrUnavailable),
		errors.Is(err, store.ErrAccountNotFound):
		return auditErrStore
	case errors.As(err, &remote), errors.As(err, &challenge):
		return auditErrRemote
	default:
		return auditErrInternal
	}
}
