package drivers

import "github.com/uptrace/bun"

// Driver hides the dialect behind a bun handle; sqlite is the default,
// pg is opt-in via config.
type Driver interface {
	GetDB() *bun.DB
}
