package gate

import "errors"

var ErrCacheUnavailable = errors.New("gate: session cache unavailable")
