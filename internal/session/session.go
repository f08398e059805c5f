package session

import (
	"crypto/rand"
	"encoding/base64"
)

// TenantKind tags which registry partition a flow session belongs to.
type TenantKind string

const (
	TenantNone      TenantKind = ""
	TenantFederated TenantKind = "federated"
	TenantGeneric   TenantKind = "generic"
)

// Tenant is the tenant context of a flow: a federated domain, a generic
// provider alias, or nothing (password/admin-default flow). A single Key field
// keeps the two variants mutually exclusive by construction.
type Tenant struct {
	Kind TenantKind `json:"kind,omitempty"`
	Key  string     `json:"key,omitempty"`
}

// Data is the serialized form of a flow session. Tenant, Next, and Fail are
// single-use flow context; Nonces holds the per-state OIDC bookkeeping.
type Data struct {
	Tenant Tenant            `json:"tenant,omitempty"`
	Next   string            `json:"next,omitempty"`
	Fail   string            `json:"fail,omitempty"`
	Nonces map[string]string `json:"nonces,omitempty"`
}

// Session is a server-side session bound to an opaque identifier. Mutations
// mark it dirty; the HTTP middleware persists dirty sessions before the
// response is committed.
type Session struct {
	id    string
	data  Data
	dirty bool
}

// New creates an empty session under a fresh random identifier.
func New() (*Session, error) {
	id, err := randomID()
	if err != nil {
		return nil, err
	}
	return &Session{id: id}, nil
}

// Restore rebuilds a session from stored data.
func Restore(id string, data Data) *Session {
	return &Session{id: id, data: data}
}

// ID returns the session identifier. During auth initiation it doubles as the
// OIDC state parameter.
func (s *Session) ID() string { return s.id }

// Data returns a copy of the session payload for persistence.
func (s *Session) Data() Data { return s.data }

// Dirty reports whether the session has unsaved mutations.
func (s *Session) Dirty() bool { return s.dirty }

// MarkClean resets the dirty flag after a successful save.
func (s *Session) MarkClean() { s.dirty = false }

// Adopt replaces the session's contents and identifier with those of a stored
// session. This is the bridging step: subsequent writes land back in the
// original session's storage.
func (s *Session) Adopt(id string, data Data) {
	s.id = id
	s.data = data
	s.dirty = true
}

// SetFederated records the federated tenant domain, displacing any generic
// alias previously set.
func (s *Session) SetFederated(domainKey string) {
	s.data.Tenant = Tenant{Kind: TenantFederated, Key: domainKey}
	s.dirty = true
}

// SetGeneric records the generic provider alias, displacing any federated
// domain previously set.
func (s *Session) SetGeneric(alias string) {
	s.data.Tenant = Tenant{Kind: TenantGeneric, Key: alias}
	s.dirty = true
}

// Tenant returns the current tenant context.
func (s *Session) Tenant() Tenant { return s.data.Tenant }

// ClearTenant removes the tenant context once claims have resolved to a user.
func (s *Session) ClearTenant() {
	if s.data.Tenant.Kind == TenantNone {
		return
	}
	s.data.Tenant = Tenant{}
	s.dirty = true
}

// SetRedirects stores the frontend success/failure redirect targets.
func (s *Session) SetRedirects(next, fail string) {
	s.data.Next = next
	s.data.Fail = fail
	s.dirty = true
}

// ConsumeNext returns and removes the success redirect target.
func (s *Session) ConsumeNext() string {
	next := s.data.Next
	if next != "" {
		s.data.Next = ""
		s.dirty = true
	}
	return next
}

// ConsumeFail returns and removes the failure redirect target.
func (s *Session) ConsumeFail() string {
	fail := s.data.Fail
	if fail != "" {
		s.data.Fail = ""
		s.dirty = true
	}
	return fail
}

// PutNonce records the nonce issued for a given state value.
func (s *Session) PutNonce(state, nonce string) {
	if s.data.Nonces == nil {
		s.data.Nonces = make(map[string]string)
	}
	s.data.Nonces[state] = nonce
	s.dirty = true
}

// TakeNonce returns and removes the nonce recorded for state.
func (s *Session) TakeNonce(state string) (string, bool) {
	nonce, ok := s.data.Nonces[state]
	if ok {
		delete(s.data.Nonces, state)
		s.dirty = true
	}
	return nonce, ok
}

func randomID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
