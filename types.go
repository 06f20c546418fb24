package vapor

import (
	"context"
	"strconv"

	"github.com/vaporhq/vapor/store"
)

// SteamID is the platform's 64-bit account identifier.
type SteamID uint64

// AccountID returns the low 32 bits, the key the platform uses for its
// per-account indexes.
func (id SteamID) AccountID() uint32 {
	return uint32(id & 0xFFFFFFFF)
}

func (id SteamID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// LoginDetails is the caller-supplied input for one login attempt.
// AccountName is always required; Password may be empty when a stored
// session allows the silent path. CaptchaGID must echo the value from the
// previous attempt's [LoginResult] so the captcha answer is validated
// against the challenge that produced it.
type LoginDetails struct {
	AccountName   string
	Password      string
	TwoFactorCode string
	CaptchaText   string
	CaptchaGID    string
}

// LoginStatus discriminates the closed set of login outcomes.
type LoginStatus uint8

const (
	// LoginOK means a session was established and persisted.
	LoginOK LoginStatus = iota
	// LoginMissingDetails means account name or password was empty; no
	// remote call was made.
	LoginMissingDetails
	// LoginOldSession means the stored session token was rejected; the
	// stored session artifacts have been cleared and the caller must retry
	// with credentials.
	LoginOldSession
	// LoginThrottled means the per-account attempt budget is exhausted; no
	// remote call was made.
	LoginThrottled
	// LoginRemoteError carries the platform's rejection verbatim, with
	// captcha/email hints when the platform wants more input.
	LoginRemoteError
)

// LoginResult is the normalized outcome of [Engine.AttemptLogin]. Message
// and the hint fields are populated only for LoginRemoteError; CaptchaGID
// correlates a captcha challenge with the retry that answers it.
type LoginResult struct {
	Status      LoginStatus
	Message     string
	CaptchaURL  string
	CaptchaGID  string
	EmailDomain string
}

// OK reports whether the attempt established a session.
func (r LoginResult) OK() bool {
	return r.Status == LoginOK
}

// SessionData is what the platform hands back on a successful login.
type SessionData struct {
	SessionID         string
	Cookies           []string
	GuardMachineToken string
	OAuthToken        string
	SteamID           SteamID
}

// LoginAttempt is the wire-facing input to [CommunityClient.Login].
type LoginAttempt struct {
	AccountName   string
	Password      string
	TwoFactorCode string
	CaptchaText   string
	CaptchaGID    string
}

// ChallengeError is a login rejection that asks the user for more input.
// CaptchaGID identifies the issued captcha and must accompany the retried
// attempt; EmailDomain hints where a verification mail was sent.
type ChallengeError struct {
	Message     string
	CaptchaURL  string
	CaptchaGID  string
	EmailDomain string
}

func (e *ChallengeError) Error() string {
	return e.Message
}

// CommunityClient is one disposable attempt to act as a single remote
// account. Implementations own the transport; the engine only sequences
// calls and persists outcomes. Every method issues at most one remote
// round trip and honors ctx cancellation.
type CommunityClient interface {
	OAuthLogin(ctx context.Context, guardMachineToken, oauthToken string) (*SessionData, error)
	Login(ctx context.Context, attempt LoginAttempt) (*SessionData, error)
	SetCookies(cookies []string)
	SetOAuthToken(token string)
	SteamID() SteamID
	EnableTwoFactor(ctx context.Context) (*store.Secrets, error)
	FinalizeTwoFactor(ctx context.Context, sharedSecret, activationCode string) error
	DisableTwoFactor(ctx context.Context, revocationCode string) error
	PlayGames(ctx context.Context, appIDs []uint32) error
}

// ClientFactory constructs a fresh client for each login attempt. A failed
// attempt leaves partially-mutated client state behind, so clients are
// never reused across attempts.
type ClientFactory func() CommunityClient
