package protocol

const (
	ErrBadRequest = "E_BAD_REQUEST"
	ErrBusy       = "E_BUSY"
	ErrDenied     = "E_DENIED"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest: {},
	ErrBusy:       {},
	ErrDenied:     {},
	ErrInternal:   {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
