package vapor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vaporhq/vapor/store"
)

const testSharedSecret = "MTIzNDU2Nzg5MDEyMzQ1Njc4OTA=" // base64("12345678901234567890")

func signedTokenExpiring(t *testing.T, at time.Time) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": at.Unix(),
		"sub": "76561197990232285",
	})
	signed, err := token.SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}
	return signed
}

func TestAttemptLoginSilentPathSkipsCredentials(t *testing.T) {
	oauthToken := signedTokenExpiring(t, time.Now().Add(time.Hour))
	client := &fakeClient{
		oauthData: &SessionData{
			Cookies: []string{"sessionid=abc", "steamLogin=xyz"},
			SteamID: 76561197990232285,
		},
	}
	engine, fs := newTestEngine(t, client)

	seedAccount(t, fs, "alice", store.Record{
		SteamID64:         "76561197990232285",
		GuardMachineToken: "machine-token",
		OAuthToken:        oauthToken,
	})

	result := engine.AttemptLogin(context.Background(), LoginDetails{AccountName: "alice"})
	if !result.OK() {
		t.Fatalf("expected silent login to succeed, got status %d message %q", result.Status, result.Message)
	}
	if client.oauthCalls != 1 {
		t.Fatalf("expected one OAuthLogin call, got %d", client.oauthCalls)
	}
	if client.loginCalls != 0 {
		t.Fatalf("silent path must not fall through to credentials, Login called %d times", client.loginCalls)
	}

	rec := mustAccount(t, fs, "alice")
	if len(rec.Cookies) != 2 {
		t.Fatalf("expected refreshed cookies persisted, got %v", rec.Cookies)
	}
	if rec.OAuthToken != oauthToken || rec.GuardMachineToken != "machine-token" {
		t.Fatal("silent success must keep the stored tokens")
	}

	main, err := fs.MainAccount(context.Background())
	if err != nil {
		t.Fatalf("MainAccount failed: %v", err)
	}
	if main.Name != "alice" {
		t.Fatalf("expected alice to become main, got %q", main.Name)
	}

	if engine.CurrentClient() == nil {
		t.Fatal("expected a live client after silent login")
	}
	if client.oauthToken != oauthToken {
		t.Fatal("expected stored oauth token attached to the live client")
	}
}

func TestAttemptLoginSilentRejectionClearsSession(t *testing.T) {
	client := &fakeClient{
		oauthErr: errors.New("token revoked"),
	}
	engine, fs := newTestEngine(t, client)

	seedAccount(t, fs, "alice", store.Record{
		SteamID64:         "76561197990232285",
		Cookies:           []string{"sessionid=old"},
		GuardMachineToken: "machine-token",
		OAuthToken:        signedTokenExpiring(t, time.Now().Add(time.Hour)),
	})

	result := engine.AttemptLogin(context.Background(), LoginDetails{AccountName: "alice"})
	if result.Status != LoginOldSession {
		t.Fatalf("expected LoginOldSession, got %d", result.Status)
	}
	if client.loginCalls != 0 {
		t.Fatal("rejected silent login must not retry with credentials")
	}

	rec := mustAccount(t, fs, "alice")
	if rec.OAuthToken != "" || rec.GuardMachineToken != "" || rec.Cookies != nil {
		t.Fatalf("expected session artifacts cleared, got %+v", rec)
	}
	if rec.SteamID64 != "76561197990232285" {
		t.Fatal("clearing the session must not drop the account identity")
	}
	if engine.CurrentClient() != nil {
		t.Fatal("no live client after a rejected silent login")
	}
}

func TestAttemptLoginExpiredTokenSkipsNetwork(t *testing.T) {
	client := &fakeClient{}
	engine, fs := newTestEngine(t, client)

	seedAccount(t, fs, "alice", store.Record{
		GuardMachineToken: "machine-token",
		OAuthToken:        signedTokenExpiring(t, time.Now().Add(-time.Hour)),
	})

	result := engine.AttemptLogin(context.Background(), LoginDetails{AccountName: "alice"})
	if result.Status != LoginOldSession {
		t.Fatalf("expected LoginOldSession, got %d", result.Status)
	}
	if client.oauthCalls != 0 {
		t.Fatal("locally-expired token must not reach the network")
	}

	rec := mustAccount(t, fs, "alice")
	if rec.OAuthToken != "" || rec.GuardMachineToken != "" {
		t.Fatal("expected expired session artifacts cleared")
	}
}

func TestAttemptLoginMissingDetails(t *testing.T) {
	client := &fakeClient{}
	engine, _ := newTestEngine(t, client)

	result := engine.AttemptLogin(context.Background(), LoginDetails{AccountName: "alice"})
	if result.Status != LoginMissingDetails {
		t.Fatalf("expected LoginMissingDetails, got %d", result.Status)
	}
	if client.oauthCalls != 0 || client.loginCalls != 0 {
		t.Fatal("local validation failure must not make remote calls")
	}

	result = engine.AttemptLogin(context.Background(), LoginDetails{Password: "hunter2"})
	if result.Status != LoginMissingDetails {
		t.Fatalf("expected LoginMissingDetails for empty name, got %d", result.Status)
	}
}

func TestAttemptLoginInteractiveSuccessCreatesAccount(t *testing.T) {
	client := &fakeClient{
		loginData: &SessionData{
			Cookies:           []string{"sessionid=new"},
			GuardMachineToken: "fresh-machine-token",
			OAuthToken:        "fresh-oauth",
			SteamID:           76561197990232285,
		},
	}
	engine, fs := newTestEngine(t, client)

	result := engine.AttemptLogin(context.Background(), LoginDetails{
		AccountName: "alice",
		Password:    "hunter2",
	})
	if !result.OK() {
		t.Fatalf("expected success, got status %d message %q", result.Status, result.Message)
	}
	if result.CaptchaGID != "" {
		t.Fatal("success must clear the captcha correlation")
	}

	rec := mustAccount(t, fs, "alice")
	if rec.SteamID64 != "76561197990232285" {
		t.Fatalf("expected steam id persisted, got %q", rec.SteamID64)
	}
	if rec.GuardMachineToken != "fresh-machine-token" || rec.OAuthToken != "fresh-oauth" {
		t.Fatal("expected session tokens persisted")
	}
	if rec.SavedPassword != "" {
		t.Fatal("guard-protected account must not keep the password")
	}
	if rec.UsingAuthenticator {
		t.Fatal("a plain login must not mark the authenticator active")
	}

	main, err := fs.MainAccount(context.Background())
	if err != nil || main.Name != "alice" {
		t.Fatalf("expected alice as main, got %v %v", main, err)
	}
	if client.cookies == nil || client.oauthToken != "fresh-oauth" {
		t.Fatal("expected session attached to the live client")
	}
}

func TestAttemptLoginSavesPasswordOnlyWithoutGuard(t *testing.T) {
	client := &fakeClient{
		loginData: &SessionData{
			Cookies: []string{"sessionid=new"},
			SteamID: 76561197990232285,
		},
	}
	engine, fs := newTestEngine(t, client)

	result := engine.AttemptLogin(context.Background(), LoginDetails{
		AccountName: "bob",
		Password:    "hunter2",
	})
	if !result.OK() {
		t.Fatalf("expected success, got %d", result.Status)
	}

	rec := mustAccount(t, fs, "bob")
	if rec.SavedPassword != "hunter2" {
		t.Fatalf("unguarded account should keep the password, got %q", rec.SavedPassword)
	}
}

func TestAttemptLoginClearsPasswordWhenSecretsPresent(t *testing.T) {
	client := &fakeClient{
		loginData: &SessionData{
			Cookies: []string{"sessionid=new"},
			SteamID: 76561197990232285,
		},
	}
	engine, fs := newTestEngine(t, client)

	seedAccount(t, fs, "carol", store.Record{
		SteamID64:     "76561197990232285",
		SavedPassword: "stale",
		Secrets:       &store.Secrets{SharedSecret: testSharedSecret, RevocationCode: "R12345"},
	})

	result := engine.AttemptLogin(context.Background(), LoginDetails{
		AccountName: "carol",
		Password:    "hunter2",
	})
	if !result.OK() {
		t.Fatalf("expected success, got %d", result.Status)
	}

	rec := mustAccount(t, fs, "carol")
	if rec.SavedPassword != "" {
		t.Fatal("an account holding authenticator secrets must not keep a password")
	}
}

func TestAttemptLoginSynthesizesGuardCode(t *testing.T) {
	client := &fakeClient{
		loginData: &SessionData{
			Cookies: []string{"sessionid=new"},
			SteamID: 76561197990232285,
		},
	}
	engine, fs := newTestEngine(t, client)

	seedAccount(t, fs, "carol", store.Record{
		Secrets: &store.Secrets{SharedSecret: testSharedSecret},
	})

	result := engine.AttemptLogin(context.Background(), LoginDetails{
		AccountName:   "carol",
		Password:      "hunter2",
		TwoFactorCode: "USERXX",
	})
	if !result.OK() {
		t.Fatalf("expected success, got %d", result.Status)
	}

	sent := client.lastAttempt.TwoFactorCode
	if sent == "USERXX" {
		t.Fatal("stored secret must override the caller-supplied code")
	}

	// The code is time-derived; accept the adjacent windows to avoid a
	// boundary flake.
	now := time.Now()
	ok := false
	for _, at := range []time.Time{now.Add(-guardCodePeriod), now, now.Add(guardCodePeriod)} {
		want, err := GuardCode(testSharedSecret, at)
		if err != nil {
			t.Fatalf("GuardCode failed: %v", err)
		}
		if sent == want {
			ok = true
			break
		}
	}
	if !ok {
		t.Fatalf("sent code %q does not match the stored secret", sent)
	}
}

func TestAttemptLoginChallengeRoundTrip(t *testing.T) {
	challenge := &ChallengeError{
		Message:    "captcha required",
		CaptchaURL: "https://steamcommunity.com/public/captcha.php?gid=12345",
		CaptchaGID: "12345",
	}
	client := &fakeClient{loginErr: challenge}
	engine, _ := newTestEngine(t, client)

	result := engine.AttemptLogin(context.Background(), LoginDetails{
		AccountName: "alice",
		Password:    "hunter2",
	})
	if result.Status != LoginRemoteError {
		t.Fatalf("expected LoginRemoteError, got %d", result.Status)
	}
	if result.CaptchaURL != challenge.CaptchaURL || result.CaptchaGID != "12345" {
		t.Fatalf("expected captcha hints propagated, got %+v", result)
	}
	if result.Message != "captcha required" {
		t.Fatalf("expected the platform message verbatim, got %q", result.Message)
	}

	// Retry echoes the GID so the answer is validated against the issued
	// challenge.
	client.loginErr = nil
	client.loginData = &SessionData{Cookies: []string{"sessionid=new"}, SteamID: 76561197990232285}

	retry := engine.AttemptLogin(context.Background(), LoginDetails{
		AccountName: "alice",
		Password:    "hunter2",
		CaptchaText: "W7X2P",
		CaptchaGID:  result.CaptchaGID,
	})
	if !retry.OK() {
		t.Fatalf("expected retry to succeed, got %d", retry.Status)
	}
	if client.lastAttempt.CaptchaGID != "12345" || client.lastAttempt.CaptchaText != "W7X2P" {
		t.Fatalf("expected captcha answer forwarded with its GID, got %+v", client.lastAttempt)
	}
}

func TestAttemptLoginEmailGuardHint(t *testing.T) {
	client := &fakeClient{loginErr: &ChallengeError{
		Message:     "email code required",
		EmailDomain: "example.com",
	}}
	engine, _ := newTestEngine(t, client)

	result := engine.AttemptLogin(context.Background(), LoginDetails{
		AccountName: "alice",
		Password:    "hunter2",
	})
	if result.Status != LoginRemoteError || result.EmailDomain != "example.com" {
		t.Fatalf("expected email hint propagated, got %+v", result)
	}
}

func TestAttemptLoginThrottle(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	client := &fakeClient{loginErr: errors.New("bad credentials")}

	cfg := defaultConfig()
	cfg.Security.EnableLoginThrottle = true
	cfg.Security.MaxLoginAttempts = 2
	cfg.Security.LoginCooldownDuration = time.Minute

	engine, err := New().
		WithConfig(cfg).
		WithStore(newTestFileStore(t)).
		WithClientFactory(func() CommunityClient { return client }).
		WithRedis(rdb).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	details := LoginDetails{AccountName: "alice", Password: "wrong"}

	for i := 0; i < 3; i++ {
		result := engine.AttemptLogin(context.Background(), details)
		if result.Status != LoginRemoteError {
			t.Fatalf("attempt %d: expected LoginRemoteError, got %d", i, result.Status)
		}
	}

	result := engine.AttemptLogin(context.Background(), details)
	if result.Status != LoginThrottled {
		t.Fatalf("expected LoginThrottled after budget exhausted, got %d", result.Status)
	}
	if client.loginCalls != 3 {
		t.Fatalf("throttled attempt must not reach the network, got %d calls", client.loginCalls)
	}

	// The window expires and the budget resets.
	mr.FastForward(2 * time.Minute)
	client.loginErr = nil
	client.loginData = &SessionData{Cookies: []string{"sessionid=new"}, SteamID: 76561197990232285}

	if result := engine.AttemptLogin(context.Background(), details); !result.OK() {
		t.Fatalf("expected login after cooldown, got %d", result.Status)
	}
}

func TestAttemptLoginMetrics(t *testing.T) {
	client := &fakeClient{
		loginData: &SessionData{Cookies: []string{"sessionid=new"}, SteamID: 76561197990232285},
	}
	engine, _ := newTestEngine(t, client)

	engine.AttemptLogin(context.Background(), LoginDetails{AccountName: "alice", Password: "hunter2"})
	engine.AttemptLogin(context.Background(), LoginDetails{AccountName: "alice"})

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("expected 1 login success, got %d", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricLoginMissingDetails] != 1 {
		t.Fatalf("expected 1 missing-details, got %d", snap.Counters[MetricLoginMissingDetails])
	}
}
