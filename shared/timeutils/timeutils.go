// Package timeutils is the single source of wall-clock time for the engine.
// Components never call time.Now directly so that tests can drive challenge
// windows and TTL expiry deterministically.
package timeutils

import "time"

// Now returns the current time. Tests may swap this out to control the clock.
var Now = time.Now

// Since returns the elapsed time since t according to the injected clock.
func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}
