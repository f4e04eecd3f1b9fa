package directory

import "context"

// Directory answers whether a user identity exists. The user database itself
// is owned by the account service; the routing core only reads it.
type Directory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}
