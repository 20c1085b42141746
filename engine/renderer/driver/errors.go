package driver

import "github.com/cockroachdb/errors"

var (
	ErrOutOfPoolMemory   = errors.New("descriptor pool out of memory")
	ErrFragmentedPool    = errors.New("descriptor pool fragmented")
	ErrOutOfDeviceMemory = errors.New("out of device memory")
	ErrOutOfHostMemory   = errors.New("out of host memory")
	ErrDeviceLost        = errors.New("device lost")
	ErrInvalidHandle     = errors.New("invalid handle")
)

// IsPoolExhausted reports whether a descriptor set allocation can be retried
// from a fresh pool.
func IsPoolExhausted(err error) bool {
	return errors.Is(err, ErrOutOfPoolMemory) || errors.Is(err, ErrFragmentedPool)
}

// IsOutOfMemory reports device or host memory exhaustion.
func IsOutOfMemory(err error) bool {
	return errors.Is(err, ErrOutOfDeviceMemory) || errors.Is(err, ErrOutOfHostMemory)
}
