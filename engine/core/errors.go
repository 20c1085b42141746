package core

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	ErrUnknown          = errors.New("unknown")

	// ErrConfiguration marks errors raised while finalizing a shader or a
	// vertex layout. They abort the creation of the object.
	ErrConfiguration = errors.New("configuration error")
	// ErrResourceExhausted marks allocation failures that survived the
	// fallback allocation.
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrFenceTimeout      = errors.New("fence wait timed out")
	ErrDeviceHang        = errors.New("device hang: fence never signaled")
	ErrFrameSubmission   = errors.New("frame submission failed")
)

// DuplicateResourceError is returned when two shader stages declare the same
// resource name with an incompatible kind, size, array count or slot.
type DuplicateResourceError struct {
	Shader   string
	Resource string
	Reason   string
}

func (e *DuplicateResourceError) Error() string {
	return fmt.Sprintf("shader `%s`: resource `%s` declared twice with incompatible layout: %s", e.Shader, e.Resource, e.Reason)
}

func NewDuplicateResourceError(shader, resource, format string, args ...interface{}) error {
	return errors.Mark(&DuplicateResourceError{
		Shader:   shader,
		Resource: resource,
		Reason:   fmt.Sprintf(format, args...),
	}, ErrConfiguration)
}

// UnsupportedAttributeError is returned for a vertex attribute whose shape
// no vertex input format can express.
type UnsupportedAttributeError struct {
	Shader    string
	Attribute string
	Type      string
}

func (e *UnsupportedAttributeError) Error() string {
	return fmt.Sprintf("shader `%s`: vertex attribute `%s` of type %s is not supported", e.Shader, e.Attribute, e.Type)
}

func NewUnsupportedAttributeError(shader, attribute, typ string) error {
	return errors.Mark(&UnsupportedAttributeError{Shader: shader, Attribute: attribute, Type: typ}, ErrConfiguration)
}

// NewConfigurationError reports a shader-finalize failure naming the shader.
func NewConfigurationError(shader string, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(errors.Newf(format, args...), "shader `%s`", shader), ErrConfiguration)
}

// NewResourceExhaustedError reports an allocation that failed twice.
func NewResourceExhaustedError(cause error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(cause, format, args...), ErrResourceExhausted)
}

func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsResourceExhausted(err error) bool {
	return errors.Is(err, ErrResourceExhausted)
}
