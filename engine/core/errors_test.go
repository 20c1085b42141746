package core

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestDuplicateResourceErrorIsConfigurationError(t *testing.T) {
	err := NewDuplicateResourceError("sprite", "color", "size %d vs %d", 16, 32)
	if !IsConfigurationError(err) {
		t.Error("duplicate resource error should be a configuration error")
	}
	var dup *DuplicateResourceError
	if !errors.As(err, &dup) {
		t.Fatal("errors.As() failed")
	}
	if dup.Shader != "sprite" || dup.Resource != "color" {
		t.Errorf("got shader %q resource %q", dup.Shader, dup.Resource)
	}
	if !strings.Contains(err.Error(), "sprite") || !strings.Contains(err.Error(), "color") {
		t.Errorf("message %q does not name shader and resource", err.Error())
	}
}

func TestResourceExhaustedError(t *testing.T) {
	cause := errors.New("out of pool memory")
	err := NewResourceExhaustedError(cause, "descriptor pool for shader `%s`", "sprite")
	if !IsResourceExhausted(err) {
		t.Error("IsResourceExhausted() = false")
	}
	if IsConfigurationError(err) {
		t.Error("exhaustion must not be a configuration error")
	}
	if !errors.Is(err, cause) {
		t.Error("cause lost")
	}
}

func TestAssertfReturnsAssertionFailure(t *testing.T) {
	if err := Assertf(true, "never"); err != nil {
		t.Fatalf("Assertf(true) = %v", err)
	}
	if debugAssertions {
		t.Skip("assertions panic in debug builds")
	}
	err := Assertf(false, "layout was %s", "undefined")
	if err == nil || !IsAssertionFailure(err) {
		t.Errorf("Assertf(false) = %v, want assertion failure", err)
	}
}
