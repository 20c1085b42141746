package loaders

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

// ReadSPIRV reads a compiled stage binary and checks its header.
func ReadSPIRV(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open stage binary `%s`", path)
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read stage binary `%s`", path)
	}
	if err := CheckSPIRV(buf); err != nil {
		return nil, errors.Wrapf(err, "stage binary `%s`", path)
	}
	return buf, nil
}

// CheckSPIRV validates the size and magic number of a SPIR-V module.
func CheckSPIRV(code []byte) error {
	// Magic, version, generator, bound and schema words.
	if len(code) < 20 {
		return errors.Newf("%d bytes is too short for a SPIR-V module", len(code))
	}
	if len(code)%4 != 0 {
		return errors.Newf("size %d is not a multiple of 4", len(code))
	}
	if magic := binary.LittleEndian.Uint32(code); magic != metadata.SPIRVMagic {
		return errors.Newf("bad SPIR-V magic 0x%08x", magic)
	}
	return nil
}
