// Package store persists known platform accounts: session artifacts,
// reusable OAuth tokens, authenticator secrets, and the pointer to the
// account the rest of the application treats as active.
//
// All mutation goes through [Store.Edit], which applies a transform to the
// full state atomically. Two backends are provided: [FileStore] for desktop
// deployments and [RedisStore] for headless ones.
package store

import (
	"context"
	"errors"
)

var (
	// ErrAccountNotFound is returned when the named account is not in the store.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned by AddAccount for a name already present.
	ErrAccountExists = errors.New("account already exists")
	// ErrNoMainAccount is returned when no account has ever been made active.
	ErrNoMainAccount = errors.New("no main account")
	// ErrUnavailable wraps backend I/O failures.
	ErrUnavailable = errors.New("account store unavailable")
)

// Secrets holds the authenticator material issued by the platform when
// two-factor enrollment begins. SharedSecret feeds guard-code generation;
// RevocationCode is required to tear the authenticator down again.
type Secrets struct {
	SharedSecret   string `json:"shared_secret"`
	RevocationCode string `json:"revocation_code"`
	IdentitySecret string `json:"identity_secret,omitempty"`
	SerialNumber   string `json:"serial_number,omitempty"`
	URI            string `json:"uri,omitempty"`
}

// Record is one known local account.
//
// Cookies, GuardMachineToken, and OAuthToken are present only while a
// session is believed valid and are cleared together when the platform
// rejects a silent login. SavedPassword is retained only while the account
// has no authenticator secrets and is cleared as soon as Secrets is set.
type Record struct {
	Name               string   `json:"-"`
	SteamID64          string   `json:"steamid"`
	Cookies            []string `json:"cookies,omitempty"`
	GuardMachineToken  string   `json:"steamguard,omitempty"`
	OAuthToken         string   `json:"oauth_token,omitempty"`
	Secrets            *Secrets `json:"secrets,omitempty"`
	UsingAuthenticator bool     `json:"using_authenticator"`
	SavedPassword      string   `json:"password,omitempty"`
}

// Enrolling reports whether the account holds authenticator secrets that
// have not been activated yet.
func (r *Record) Enrolling() bool {
	return r != nil && r.Secrets != nil && !r.UsingAuthenticator
}

// State is the full persisted store content. IDToName maps the platform's
// 32-bit account ID (decimal string) back to the local account name and is
// kept in sync with Accounts by every edit that grants a session.
type State struct {
	Accounts map[string]Record `json:"accounts"`
	IDToName map[string]string `json:"id_to_name"`
	Main     string            `json:"main"`
}

func (s *State) init() {
	if s.Accounts == nil {
		s.Accounts = make(map[string]Record)
	}
	if s.IDToName == nil {
		s.IDToName = make(map[string]string)
	}
}

// Account returns a copy of the named record.
func (s *State) Account(name string) (Record, bool) {
	rec, ok := s.Accounts[name]
	if ok {
		rec.Name = name
	}
	return rec, ok
}

// Store is the persistence contract consumed by the engine. Edit applies
// the transform atomically; a transform error aborts without persisting.
type Store interface {
	GetAccount(ctx context.Context, name string) (*Record, error)
	AddAccount(ctx context.Context, name string, rec Record) error
	MainAccount(ctx context.Context) (*Record, error)
	SetMainAccount(ctx context.Context, name string) error
	Edit(ctx context.Context, fn func(*State) error) error
}

func getAccount(st *State, name string) (*Record, error) {
	rec, ok := st.Account(name)
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &rec, nil
}

func mainAccount(st *State) (*Record, error) {
	if st.Main == "" {
		return nil, ErrNoMainAccount
	}
	rec, ok := st.Account(st.Main)
	if !ok {
		return nil, ErrNoMainAccount
	}
	return &rec, nil
}
