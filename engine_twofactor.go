package vapor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vaporhq/vapor/store"
)

// EnableTwoFactor starts authenticator enrollment for the main account over
// the live session. On success the platform-issued secrets are persisted
// with the authenticator still inactive, any saved password is discarded,
// and a copy of the secrets is returned so the caller can surface the
// revocation code to the user.
//
// A remote rejection persists nothing.
func (e *Engine) EnableTwoFactor(ctx context.Context) (*store.Secrets, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	attemptID := uuid.NewString()

	main, err := e.store.MainAccount(ctx)
	if err != nil {
		e.metricInc(MetricEnrollFailure)
		e.emitAudit(ctx, auditEventEnrollFailure, false, "", "", attemptID, err, nil)
		return nil, err
	}

	client, err := e.liveClient()
	if err != nil {
		e.metricInc(MetricEnrollFailure)
		e.emitAudit(ctx, auditEventEnrollFailure, false, main.Name, main.SteamID64, attemptID, err, nil)
		return nil, err
	}

	secrets, err := client.EnableTwoFactor(ctx)
	if err != nil {
		e.metricInc(MetricEnrollFailure)
		e.emitAudit(ctx, auditEventEnrollFailure, false, main.Name, main.SteamID64, attemptID, err, nil)
		return nil, remoteErr("enable two-factor", err)
	}

	name := main.Name
	stored := *secrets
	err = e.store.Edit(ctx, func(st *store.State) error {
		rec, ok := st.Account(name)
		if !ok {
			return store.ErrAccountNotFound
		}
		rec.Name = ""
		sec := stored
		rec.Secrets = &sec
		rec.UsingAuthenticator = false
		rec.SavedPassword = ""
		st.Accounts[name] = rec
		return nil
	})
	if err != nil {
		e.metricInc(MetricEnrollFailure)
		e.emitAudit(ctx, auditEventEnrollFailure, false, name, main.SteamID64, attemptID, err, nil)
		return nil, err
	}

	e.metricInc(MetricEnrollSuccess)
	e.emitAudit(ctx, auditEventEnrollStarted, true, name, main.SteamID64, attemptID, nil, nil)

	out := stored
	return &out, nil
}

// FinalizeTwoFactor activates a pending enrollment with the code the user
// received out of band. Only a platform-confirmed activation flips the
// stored record to active; a rejection leaves the enrollment pending so the
// user can retry with a fresh code.
func (e *Engine) FinalizeTwoFactor(ctx context.Context, activationCode string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	attemptID := uuid.NewString()

	main, err := e.store.MainAccount(ctx)
	if err != nil {
		e.metricInc(MetricFinalizeFailure)
		e.emitAudit(ctx, auditEventFinalizeFailure, false, "", "", attemptID, err, nil)
		return err
	}
	if main.Secrets == nil || main.Secrets.SharedSecret == "" {
		e.metricInc(MetricFinalizeFailure)
		e.emitAudit(ctx, auditEventFinalizeFailure, false, main.Name, main.SteamID64, attemptID, ErrNoPendingEnrollment, nil)
		return ErrNoPendingEnrollment
	}

	client, err := e.liveClient()
	if err != nil {
		e.metricInc(MetricFinalizeFailure)
		e.emitAudit(ctx, auditEventFinalizeFailure, false, main.Name, main.SteamID64, attemptID, err, nil)
		return err
	}

	if err := client.FinalizeTwoFactor(ctx, main.Secrets.SharedSecret, activationCode); err != nil {
		e.metricInc(MetricFinalizeFailure)
		e.emitAudit(ctx, auditEventFinalizeFailure, false, main.Name, main.SteamID64, attemptID, err, nil)
		return remoteErr("finalize two-factor", err)
	}

	name := main.Name
	err = e.store.Edit(ctx, func(st *store.State) error {
		rec, ok := st.Account(name)
		if !ok {
			return store.ErrAccountNotFound
		}
		rec.Name = ""
		rec.UsingAuthenticator = true
		st.Accounts[name] = rec
		return nil
	})
	if err != nil {
		e.metricInc(MetricFinalizeFailure)
		e.emitAudit(ctx, auditEventFinalizeFailure, false, name, main.SteamID64, attemptID, err, nil)
		return err
	}

	e.metricInc(MetricFinalizeSuccess)
	e.emitAudit(ctx, auditEventFinalizeSuccess, true, name, main.SteamID64, attemptID, nil, nil)
	return nil
}

// RevokeTwoFactor tears the authenticator down using the stored revocation
// code. On platform confirmation the secrets are deleted; after this the
// account can no longer generate codes and must re-enroll.
func (e *Engine) RevokeTwoFactor(ctx context.Context) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	attemptID := uuid.NewString()

	main, err := e.store.MainAccount(ctx)
	if err != nil {
		e.metricInc(MetricRevokeFailure)
		e.emitAudit(ctx, auditEventRevokeFailure, false, "", "", attemptID, err, nil)
		return err
	}
	if main.Secrets == nil || main.Secrets.RevocationCode == "" {
		e.metricInc(MetricRevokeFailure)
		e.emitAudit(ctx, auditEventRevokeFailure, false, main.Name, main.SteamID64, attemptID, ErrNoRevocationCode, nil)
		return ErrNoRevocationCode
	}

	client, err := e.liveClient()
	if err != nil {
		e.metricInc(MetricRevokeFailure)
		e.emitAudit(ctx, auditEventRevokeFailure, false, main.Name, main.SteamID64, attemptID, err, nil)
		return err
	}

	if err := client.DisableTwoFactor(ctx, main.Secrets.RevocationCode); err != nil {
		e.metricInc(MetricRevokeFailure)
		e.emitAudit(ctx, auditEventRevokeFailure, false, main.Name, main.SteamID64, attemptID, err, nil)
		return remoteErr("disable two-factor", err)
	}

	name := main.Name
	err = e.store.Edit(ctx, func(st *store.State) error {
		rec, ok := st.Account(name)
		if !ok {
			return store.ErrAccountNotFound
		}
		rec.Name = ""
		rec.UsingAuthenticator = false
		rec.Secrets = nil
		st.Accounts[name] = rec
		return nil
	})
	if err != nil {
		e.metricInc(MetricRevokeFailure)
		e.emitAudit(ctx, auditEventRevokeFailure, false, name, main.SteamID64, attemptID, err, nil)
		return err
	}

	e.metricInc(MetricRevokeSuccess)
	e.emitAudit(ctx, auditEventRevokeSuccess, true, name, main.SteamID64, attemptID, nil, nil)
	return nil
}

// GenerateAuthCode derives the current authenticator code for the main
// account from its stored shared secret. The code works as soon as
// enrollment has stored a secret, before activation completes.
func (e *Engine) GenerateAuthCode(ctx context.Context) (string, error) {
	if e == nil || e.store == nil {
		return "", ErrEngineNotReady
	}

	main, err := e.store.MainAccount(ctx)
	if err != nil {
		return "", err
	}
	if main.Secrets == nil || main.Secrets.SharedSecret == "" {
		return "", ErrNoSharedSecret
	}

	code, err := guardCodeAt(main.Secrets.SharedSecret, time.Now(), e.config.Guard.Period, e.config.Guard.Digits)
	if err != nil {
		return "", err
	}
	e.metricInc(MetricGuardCodeGenerated)
	return code, nil
}
