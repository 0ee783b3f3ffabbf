package models

// Session is the identity context for one authenticated request.
// It is built by the auth middleware from the gateway-forwarded
// headers and handed into service calls; the bearer token is opaque
// to this service, issuance and verification live in the external
// auth service.
type Session struct {
	Name  string
	Email string
	Role  string
	Token string
}

// IsGovernment reports whether the session belongs to a government
// operator (the only role allowed to validate reports and approve
// rewards).
func (s Session) IsGovernment() bool {
	return s.Role == "government"
}
