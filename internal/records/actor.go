package records

import (
	"github.com/Siwa-Docsecure/base/internal/audit"
	"github.com/Siwa-Docsecure/base/internal/auth"
)

// Actor is the caller of an engine operation.
type Actor struct {
	UserID   string
	Role     auth.Role
	ClientID string
	Origin   audit.Origin
}

// ActorFromIdentity builds an Actor from a verified identity.
func ActorFromIdentity(id auth.Identity, origin audit.Origin) Actor {
	return Actor{UserID: id.UserID, Role: id.Role, ClientID: id.ClientID, Origin: origin}
}

func (a Actor) isClient() bool { return a.Role == auth.RoleClient }

// owns reports whether a client actor belongs to clientID. Operators own everything.
func (a Actor) owns(clientID string) bool {
	if !a.isClient() {
		return true
	}
	return a.ClientID != "" && a.ClientID == clientID
}
