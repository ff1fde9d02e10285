package protocol

const (
	// Business rule said no; nothing changed.
	ErrRejected = "E_REJECTED"

	// Malformed frames, unknown action kinds, schema failures, invalid selectors.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrNotFound   = "E_NOT_FOUND"
	ErrWrongOwner = "E_WRONG_OWNER"

	ErrRateLimit    = "E_RATE_LIMIT"
	ErrUnauthorized = "E_UNAUTHORIZED"
	ErrVersion      = "E_VERSION"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrRejected:     {},
	ErrBadRequest:   {},
	ErrNotFound:     {},
	ErrWrongOwner:   {},
	ErrRateLimit:    {},
	ErrUnauthorized: {},
	ErrVersion:      {},
	ErrInternal:     {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
