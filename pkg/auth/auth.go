// Package auth decides which users may attach to which server
// consoles. The service delegates the actual access model to the
// embedding deployment; the default grants everything.
package auth

import "context"

// Authorizer answers whether a user may operate a server's console.
type Authorizer interface {
	HasAccess(ctx context.Context, serverID, userID string) (bool, error)
}

// AllowAll authorizes every request. Suitable when access control is
// enforced upstream, e.g. by a reverse proxy.
type AllowAll struct{}

func (AllowAll) HasAccess(context.Context, string, string) (bool, error) {
	return true, nil
}

// StaticACL authorizes from a fixed map of server ID to permitted user
// IDs. Servers absent from the map reject everyone.
type StaticACL map[string][]string

func (a StaticACL) HasAccess(_ context.Context, serverID, userID string) (bool, error) {
	for _, u := range a[serverID] {
		if u == userID {
			return true, nil
		}
	}
	return false, nil
}
