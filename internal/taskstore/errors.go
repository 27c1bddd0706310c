package taskstore

import "github.com/rjalexa/taskbroker/internal/brokererr"

// Sentinel results surfaced by the atomic scripts; mapped onto the stable
// taxonomy in internal/brokererr so callers use errors.Is uniformly.
var (
	ErrNotFound      = brokererr.ErrNotFound
	ErrConflict      = brokererr.ErrConflict
	ErrAlreadyExists = brokererr.ErrAlreadyExists
)
