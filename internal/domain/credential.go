package domain

// Credential is a service login scoped to a network ("IU") or a single
// station ("IU.ANMO"). Credentials are looked up, never mutated, by the
// engine.
type Credential struct {
	Scope    string
	Username string
	Password string
}
