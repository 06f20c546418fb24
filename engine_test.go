package vapor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/vaporhq/vapor/store"
)

// fakeClient is a scripted CommunityClient. Each response field is consumed
// by the matching method; call counters let tests assert which paths ran.
type fakeClient struct {
	oauthData *SessionData
	oauthErr  error
	loginData *SessionData
	loginErr  error

	secrets     *store.Secrets
	enableErr   error
	finalizeErr error
	disableErr  error
	playErr     error

	oauthCalls    int
	loginCalls    int
	enableCalls   int
	finalizeCalls int
	disableCalls  int
	playCalls     int

	lastAttempt      LoginAttempt
	lastFinalizeCode string
	lastRevokeCode   string
	lastPlayed       []uint32
	cookies          []string
	oauthToken       string
	steamID          SteamID
}

func (f *fakeClient) OAuthLogin(_ context.Context, _, _ string) (*SessionData, error) {
	f.oauthCalls++
	if f.oauthErr != nil {
		return nil, f.oauthErr
	}
	return f.oauthData, nil
}

func (f *fakeClient) Login(_ context.Context, attempt LoginAttempt) (*SessionData, error) {
	f.loginCalls++
	f.lastAttempt = attempt
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.loginData, nil
}

func (f *fakeClient) SetCookies(cookies []string) { f.cookies = cookies }
func (f *fakeClient) SetOAuthToken(token string)  { f.oauthToken = token }
func (f *fakeClient) SteamID() SteamID            { return f.steamID }

func (f *fakeClient) EnableTwoFactor(_ context.Context) (*store.Secrets, error) {
	f.enableCalls++
	if f.enableErr != nil {
		return nil, f.enableErr
	}
	return f.secrets, nil
}

func (f *fakeClient) FinalizeTwoFactor(_ context.Context, _, code string) error {
	f.finalizeCalls++
	f.lastFinalizeCode = code
	return f.finalizeErr
}

func (f *fakeClient) DisableTwoFactor(_ context.Context, code string) error {
	f.disableCalls++
	f.lastRevokeCode = code
	return f.disableErr
}

func (f *fakeClient) PlayGames(_ context.Context, appIDs []uint32) error {
	f.playCalls++
	f.lastPlayed = appIDs
	return f.playErr
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func newTestFileStore(t *testing.T) *store.FileStore {
	t.Helper()

	fs, err := store.NewFileStore(filepath.Join(t.TempDir(), "accounts.json"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	return fs
}

// newTestEngine builds an engine over a file store and a factory returning
// the given client for every attempt.
func newTestEngine(t *testing.T, client *fakeClient) (*Engine, *store.FileStore) {
	t.Helper()

	fs := newTestFileStore(t)
	engine, err := New().
		WithStore(fs).
		WithClientFactory(func() CommunityClient { return client }).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, fs
}

func seedAccount(t *testing.T, s store.Store, name string, rec store.Record) {
	t.Helper()

	if err := s.AddAccount(context.Background(), name, rec); err != nil {
		t.Fatalf("AddAccount failed: %v", err)
	}
}

func setMain(t *testing.T, s store.Store, name string) {
	t.Helper()

	if err := s.SetMainAccount(context.Background(), name); err != nil {
		t.Fatalf("SetMainAccount failed: %v", err)
	}
}

func mustAccount(t *testing.T, s store.Store, name string) *store.Record {
	t.Helper()

	rec, err := s.GetAccount(context.Background(), name)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	return rec
}
