package connmanager

import "strings"

// transientPatterns is the fixed set of error-text fragments that mark a
// failure as a transient connection problem worth a background reconnect.
// Anything else is passed through to the caller untouched.
var transientPatterns = []string{
	"connection terminated",
	"connection reset",
	"connection refused",
	"timeout expired",
	"idle-in-transaction",
	"could not connect",
	"broken pipe",
	"unexpected eof",
	"server closed the connection",
}

// IsTransient reports whether err looks like a recoverable connection
// failure based on its message text.
//
// Text matching is deliberate: pool- and driver-level failures reach us from
// several layers (pgconn, net, database/sql) with no shared sentinel, and the
// message fragments above are stable across them.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
