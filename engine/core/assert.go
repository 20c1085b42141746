package core

import "github.com/cockroachdb/errors"

// Assertf checks an internal invariant of the adaptation layer. A failed
// assertion panics in binaries built with the `debug` tag; otherwise it is
// logged and returned so the caller can stop what it was doing. It is never
// used for user input.
func Assertf(cond bool, format string, args ...interface{}) error {
	if cond {
		return nil
	}
	err := errors.AssertionFailedf(format, args...)
	if debugAssertions {
		panic(err)
	}
	LogError("assertion failed: %s", err.Error())
	return err
}

func IsAssertionFailure(err error) bool {
	return errors.HasAssertionFailure(err)
}

// AssertionsPanic reports whether failed assertions panic in this build.
func AssertionsPanic() bool {
	return debugAssertions
}
