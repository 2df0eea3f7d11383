// Package logx provides the shared logger construction used by every
// component of the ITS client.
package logx

import (
	"log"
	"os"
)

// New returns a stdout logger with microsecond timestamps and the given
// component prefix, e.g. "[roi] ".
func New(prefix string) *log.Logger {
	return log.New(os.Stdout, prefix, log.LstdFlags|log.Lmicroseconds)
}

// Truncate renders at most n bytes of a payload for log sampling.
func Truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "…"
}
