// Package identity verifies bearer identity assertions issued by the
// external identity provider. Only the subject, email and expiry claims are
// trusted; role or admin markers carried in a token are ignored and always
// re-resolved server-side.
package identity

import "time"

// Identity is a verified identity assertion for the current caller.
type Identity struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
}
