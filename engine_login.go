package vapor

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vaporhq/vapor/store"
)

// AttemptLogin runs one login attempt for the named account. A fresh
// session client is constructed per attempt; state from a failed attempt
// never leaks into a retry.
//
// When the store holds a guard machine token and an OAuth token for the
// account, the silent path is tried and the attempt never falls through to
// credentials: a rejected stored token clears the persisted session
// artifacts and resolves to [LoginOldSession], and the caller must retry
// with a password. Otherwise the interactive path validates inputs
// locally, synthesizes the two-factor code when a shared secret is stored,
// and forwards any pending captcha correlation GID from details.
//
// Every terminal outcome performs exactly one store transaction and
// resolves to a [LoginResult]; no error escapes as a Go error.
func (e *Engine) AttemptLogin(ctx context.Context, details LoginDetails) LoginResult {
	if e == nil || e.store == nil || e.newClient == nil {
		return LoginResult{Status: LoginRemoteError, Message: ErrEngineNotReady.Error()}
	}

	attemptID := uuid.NewString()
	start := time.Now()
	client := e.newClient()

	account, err := e.store.GetAccount(ctx, details.AccountName)
	if err != nil && !errors.Is(err, store.ErrAccountNotFound) {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, details.AccountName, "", attemptID, err, nil)
		return LoginResult{Status: LoginRemoteError, Message: err.Error()}
	}

	if account != nil && account.GuardMachineToken != "" && account.OAuthToken != "" {
		return e.silentLogin(ctx, client, details.AccountName, account, attemptID, start)
	}
	return e.credentialLogin(ctx, client, details, account, attemptID, start)
}

func (e *Engine) silentLogin(
	ctx context.Context,
	client CommunityClient,
	name string,
	account *store.Record,
	attemptID string,
	start time.Time,
) LoginResult {
	// Platform OAuth tokens are JWTs; an already-expired one cannot
	// succeed, so skip the round trip and discard the session directly.
	if oauthTokenExpired(account.OAuthToken, time.Now()) {
		return e.discardOldSession(ctx, name, attemptID, "token_expired_local")
	}

	data, err := client.OAuthLogin(ctx, account.GuardMachineToken, account.OAuthToken)
	if err != nil {
		return e.discardOldSession(ctx, name, attemptID, "token_rejected")
	}

	oauthToken := account.OAuthToken
	steamID := data.SteamID
	err = e.store.Edit(ctx, func(st *store.State) error {
		rec, ok := st.Account(name)
		if !ok {
			return store.ErrAccountNotFound
		}
		rec.Name = ""
		rec.Cookies = data.Cookies
		if rec.SteamID64 == "" && steamID != 0 {
			rec.SteamID64 = steamID.String()
		}
		st.Accounts[name] = rec
		if steamID != 0 {
			st.IDToName[accountIDKey(steamID)] = name
		}
		st.Main = name
		return nil
	})
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, name, steamID.String(), attemptID, err, nil)
		return LoginResult{Status: LoginRemoteError, Message: err.Error()}
	}

	client.SetCookies(data.Cookies)
	client.SetOAuthToken(oauthToken)
	e.setLiveClient(client)

	e.metricInc(MetricSilentLoginSuccess)
	if e.metrics != nil {
		e.metrics.Observe(MetricLoginLatency, time.Since(start))
	}
	e.emitAudit(ctx, auditEventSilentLoginSuccess, true, name, steamID.String(), attemptID, nil, nil)
	return LoginResult{Status: LoginOK}
}

// discardOldSession clears the persisted session artifacts for an account
// whose stored token is no longer usable. The guard machine token goes
// too: it is only meaningful alongside the token that was granted with it.
func (e *Engine) discardOldSession(ctx context.Context, name, attemptID, reason string) LoginResult {
	err := e.store.Edit(ctx, func(st *store.State) error {
		rec, ok := st.Account(name)
		if !ok {
			return store.ErrAccountNotFound
		}
		rec.Name = ""
		rec.Cookies = nil
		rec.OAuthToken = ""
		rec.GuardMachineToken = ""
		st.Accounts[name] = rec
		return nil
	})
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, name, "", attemptID, err, nil)
		return LoginResult{Status: LoginRemoteError, Message: err.Error()}
	}

	e.metricInc(MetricLoginOldSession)
	e.emitAudit(ctx, auditEventLoginOldSession, false, name, "", attemptID, ErrOldSession, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return LoginResult{Status: LoginOldSession, Message: ErrOldSession.Error()}
}

func (e *Engine) credentialLogin(
	ctx context.Context,
	client CommunityClient,
	details LoginDetails,
	account *store.Record,
	attemptID string,
	start time.Time,
) LoginResult {
	if details.AccountName == "" || details.Password == "" {
		e.metricInc(MetricLoginMissingDetails)
		e.emitAudit(ctx, auditEventLoginMissingDetails, false, details.AccountName, "", attemptID, ErrMissingDetails, nil)
		return LoginResult{Status: LoginMissingDetails, Message: ErrMissingDetails.Error()}
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckLogin(ctx, details.AccountName); err != nil {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, details.AccountName, "", attemptID, ErrLoginThrottled, nil)
			return LoginResult{Status: LoginThrottled, Message: ErrLoginThrottled.Error()}
		}
	}

	attempt := LoginAttempt{
		AccountName:   details.AccountName,
		Password:      details.Password,
		TwoFactorCode: details.TwoFactorCode,
		CaptchaText:   details.CaptchaText,
		CaptchaGID:    details.CaptchaGID,
	}

	// A stored shared secret always wins over caller input: the platform
	// only accepts codes derived from the enrolled secret.
	if account != nil && account.Secrets != nil && account.Secrets.SharedSecret != "" {
		code, err := guardCodeAt(account.Secrets.SharedSecret, time.Now(), e.config.Guard.Period, e.config.Guard.Digits)
		if err == nil {
			attempt.TwoFactorCode = code
			e.metricInc(MetricGuardCodeGenerated)
		}
	}

	data, err := client.Login(ctx, attempt)
	if err != nil {
		if e.rateLimiter != nil {
			_ = e.rateLimiter.IncrementLogin(ctx, details.AccountName)
		}
		return e.remoteLoginFailure(ctx, details.AccountName, attemptID, err)
	}

	if account == nil {
		addErr := e.store.AddAccount(ctx, details.AccountName, store.Record{
			SteamID64:          data.SteamID.String(),
			UsingAuthenticator: false,
		})
		if addErr != nil && !errors.Is(addErr, store.ErrAccountExists) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, details.AccountName, data.SteamID.String(), attemptID, addErr, nil)
			return LoginResult{Status: LoginRemoteError, Message: addErr.Error()}
		}
		e.emitAudit(ctx, auditEventAccountCreated, true, details.AccountName, data.SteamID.String(), attemptID, nil, nil)
	}

	name := details.AccountName
	password := details.Password
	err = e.store.Edit(ctx, func(st *store.State) error {
		rec, ok := st.Account(name)
		if !ok {
			return store.ErrAccountNotFound
		}
		rec.Name = ""
		rec.Cookies = data.Cookies
		rec.GuardMachineToken = data.GuardMachineToken
		rec.OAuthToken = data.OAuthToken
		if rec.SteamID64 == "" && data.SteamID != 0 {
			rec.SteamID64 = data.SteamID.String()
		}
		// The password is a fallback credential for accounts without any
		// guard protection; once a guard marker or authenticator secret
		// exists it must not stay on disk.
		if data.GuardMachineToken == "" && rec.Secrets == nil {
			rec.SavedPassword = password
		} else {
			rec.SavedPassword = ""
		}
		st.Accounts[name] = rec
		if data.SteamID != 0 {
			st.IDToName[accountIDKey(data.SteamID)] = name
		}
		st.Main = name
		return nil
	})
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, name, data.SteamID.String(), attemptID, err, nil)
		return LoginResult{Status: LoginRemoteError, Message: err.Error()}
	}

	client.SetCookies(data.Cookies)
	client.SetOAuthToken(data.OAuthToken)
	e.setLiveClient(client)

	if e.rateLimiter != nil {
		_ = e.rateLimiter.ResetLogin(ctx, name)
	}

	e.metricInc(MetricLoginSuccess)
	if e.metrics != nil {
		e.metrics.Observe(MetricLoginLatency, time.Since(start))
	}
	e.emitAudit(ctx, auditEventLoginSuccess, true, name, data.SteamID.String(), attemptID, nil, nil)

	// Success clears any pending captcha correlation: the zero CaptchaGID
	// tells the caller no challenge is outstanding.
	return LoginResult{Status: LoginOK}
}

// remoteLoginFailure converts a platform rejection into the normalized
// result, preserving the message and any captcha/email hints so the caller
// can re-prompt.
func (e *Engine) remoteLoginFailure(ctx context.Context, name, attemptID string, err error) LoginResult {
	result := LoginResult{Status: LoginRemoteError, Message: err.Error()}

	var challenge *ChallengeError
	if errors.As(err, &challenge) {
		result.Message = challenge.Message
		result.CaptchaURL = challenge.CaptchaURL
		result.CaptchaGID = challenge.CaptchaGID
		result.EmailDomain = challenge.EmailDomain
	}

	e.metricInc(MetricLoginFailure)
	eventType := auditEventLoginFailure
	switch {
	case result.CaptchaURL != "" || result.CaptchaGID != "":
		eventType = auditEventCaptchaChallenged
		e.metricInc(MetricCaptchaChallenged)
	case result.EmailDomain != "":
		eventType = auditEventEmailGuardRequired
		e.metricInc(MetricEmailGuardChallenged)
	}
	e.emitAudit(ctx, eventType, false, name, "", attemptID, err, func() map[string]string {
		md := map[string]string{"message": result.Message}
		if result.CaptchaGID != "" {
			md["captcha_gid"] = result.CaptchaGID
		}
		if result.EmailDomain != "" {
			md["email_domain"] = result.EmailDomain
		}
		return md
	})
	return result
}

// accountIDKey is the decimal 32-bit account ID used as the id_to_name
// index key.
func accountIDKey(id SteamID) string {
	return strconv.FormatUint(uint64(id.AccountID()), 10)
}

// oauthTokenExpired inspects a stored OAuth token's exp claim without
// verifying the signature. Opaque (non-JWT) tokens report false and the
// platform stays the authority.
func oauthTokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return now.After(exp.Time)
}
