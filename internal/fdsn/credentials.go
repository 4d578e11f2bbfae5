package fdsn

import (
	"seisvault/internal/domain"
)

// CredentialResolver picks the credential for a stream. Scopes are
// either NET or NET.STA; the station-level scope wins over the
// network-level one.
type CredentialResolver struct {
	byScope map[string]domain.Credential
}

// NewCredentialResolver builds a resolver from a credential list. Later
// entries with the same scope replace earlier ones.
func NewCredentialResolver(creds []domain.Credential) *CredentialResolver {
	byScope := make(map[string]domain.Credential, len(creds))
	for _, c := range creds {
		if c.Scope == "" {
			continue
		}
		byScope[c.Scope] = c
	}
	return &CredentialResolver{byScope: byScope}
}

// Resolve returns the credential for key, or false when the stream is
// open access.
func (r *CredentialResolver) Resolve(key domain.StreamKey) (domain.Credential, bool) {
	if r == nil || len(r.byScope) == 0 {
		return domain.Credential{}, false
	}
	if c, ok := r.byScope[key.StationCode()]; ok {
		return c, true
	}
	if c, ok := r.byScope[key.Network]; ok {
		return c, true
	}
	return domain.Credential{}, false
}
