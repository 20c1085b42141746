package metadata

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
)

/** @brief The scalar of an attribute component. */
type ScalarKind uint8

const (
	ScalarFloat32 ScalarKind = iota
	ScalarInt32
	ScalarUint32
	/** @brief 8 bit unsigned normalized, only as 4 components (packed colors). */
	ScalarUnorm8
)

func (s ScalarKind) Size() uint32 {
	if s == ScalarUnorm8 {
		return 1
	}
	return 4
}

/**
 * @brief The type of a vertex attribute. Rows > 1 describes a matrix, which
 * occupies one location per row.
 */
type AttributeType struct {
	Scalar     ScalarKind
	Components uint8
	Rows       uint8
}

var (
	AttributeFloat = AttributeType{ScalarFloat32, 1, 1}
	AttributeVec2  = AttributeType{ScalarFloat32, 2, 1}
	AttributeVec3  = AttributeType{ScalarFloat32, 3, 1}
	AttributeVec4  = AttributeType{ScalarFloat32, 4, 1}
	AttributeMat2  = AttributeType{ScalarFloat32, 2, 2}
	AttributeMat3  = AttributeType{ScalarFloat32, 3, 3}
	AttributeMat4  = AttributeType{ScalarFloat32, 4, 4}
	AttributeInt   = AttributeType{ScalarInt32, 1, 1}
	AttributeIVec2 = AttributeType{ScalarInt32, 2, 1}
	AttributeIVec4 = AttributeType{ScalarInt32, 4, 1}
	AttributeUint  = AttributeType{ScalarUint32, 1, 1}
	AttributeUVec4 = AttributeType{ScalarUint32, 4, 1}
	AttributeColor = AttributeType{ScalarUnorm8, 4, 1}
)

// Size in bytes of the whole attribute.
func (t AttributeType) Size() uint32 {
	return t.Scalar.Size() * uint32(t.Components) * uint32(t.Rows)
}

// RowSize in bytes of one location.
func (t AttributeType) RowSize() uint32 {
	return t.Scalar.Size() * uint32(t.Components)
}

func (t AttributeType) Locations() uint32 {
	return uint32(t.Rows)
}

func (t AttributeType) IsMatrix() bool {
	return t.Rows > 1
}

// Validate reports attribute shapes a vertex input cannot express.
func (t AttributeType) Validate() error {
	if t.Components < 1 || t.Components > 4 {
		return errors.Newf("attribute with %d components is wider than 4", t.Components)
	}
	if t.Rows < 1 || t.Rows > 4 {
		return errors.Newf("attribute with %d rows is not supported", t.Rows)
	}
	if _, ok := t.RowFormat(); !ok {
		return errors.Newf("attribute %s has no vertex format", t)
	}
	return nil
}

// RowFormat is the vertex format of a single location of the attribute.
func (t AttributeType) RowFormat() (driver.Format, bool) {
	switch t.Scalar {
	case ScalarFloat32:
		switch t.Components {
		case 1:
			return driver.FormatR32Sfloat, true
		case 2:
			return driver.FormatR32G32Sfloat, true
		case 3:
			return driver.FormatR32G32B32Sfloat, true
		case 4:
			return driver.FormatR32G32B32A32Sfloat, true
		}
	case ScalarInt32:
		switch t.Components {
		case 1:
			return driver.FormatR32Sint, true
		case 2:
			return driver.FormatR32G32Sint, true
		case 3:
			return driver.FormatR32G32B32Sint, true
		case 4:
			return driver.FormatR32G32B32A32Sint, true
		}
	case ScalarUint32:
		switch t.Components {
		case 1:
			return driver.FormatR32Uint, true
		case 2:
			return driver.FormatR32G32Uint, true
		case 3:
			return driver.FormatR32G32B32Uint, true
		case 4:
			return driver.FormatR32G32B32A32Uint, true
		}
	case ScalarUnorm8:
		if t.Components == 4 {
			return driver.FormatR8G8B8A8Unorm, true
		}
	}
	return driver.FormatUndefined, false
}

func (t AttributeType) String() string {
	prefix := map[ScalarKind]string{ScalarFloat32: "", ScalarInt32: "i", ScalarUint32: "u", ScalarUnorm8: "unorm8x"}[t.Scalar]
	switch {
	case t.Scalar == ScalarUnorm8:
		return prefix + strconv.Itoa(int(t.Components))
	case t.Rows > 1 && t.Rows == t.Components:
		return prefix + "mat" + strconv.Itoa(int(t.Rows))
	case t.Rows > 1:
		return fmt.Sprintf("%smat%dx%d", prefix, t.Rows, t.Components)
	case t.Components == 1 && t.Scalar == ScalarFloat32:
		return "float"
	case t.Components == 1 && t.Scalar == ScalarInt32:
		return "int"
	case t.Components == 1:
		return "uint"
	}
	return prefix + "vec" + strconv.Itoa(int(t.Components))
}

// AttributeTypeFromString parses GLSL style type names such as vec3, mat4,
// ivec2, mat4x3 or unorm8x4.
func AttributeTypeFromString(s string) (AttributeType, error) {
	switch s {
	case "float":
		return AttributeFloat, nil
	case "int":
		return AttributeInt, nil
	case "uint":
		return AttributeUint, nil
	case "unorm8x4", "color":
		return AttributeColor, nil
	}
	scalar := ScalarFloat32
	name := s
	switch {
	case strings.HasPrefix(name, "i"):
		scalar, name = ScalarInt32, name[1:]
	case strings.HasPrefix(name, "u"):
		scalar, name = ScalarUint32, name[1:]
	}
	switch {
	case strings.HasPrefix(name, "vec"):
		n, err := strconv.Atoi(name[3:])
		if err != nil || n < 1 || n > 255 {
			break
		}
		return AttributeType{scalar, uint8(n), 1}, nil
	case strings.HasPrefix(name, "mat"):
		dims := strings.SplitN(name[3:], "x", 2)
		rows, err := strconv.Atoi(dims[0])
		if err != nil || rows < 1 || rows > 255 {
			break
		}
		cols := rows
		if len(dims) == 2 {
			if cols, err = strconv.Atoi(dims[1]); err != nil || cols < 1 || cols > 255 {
				break
			}
		}
		return AttributeType{scalar, uint8(cols), uint8(rows)}, nil
	}
	return AttributeType{}, errors.Newf("string %s is not a valid attribute type", s)
}

/** @brief Returned for an attribute that lost a location conflict. */
const UnusedLocation uint32 = 0xFFFFFFFF

/**
 * @brief One attribute inside a bound vertex buffer.
 */
type VertexAttribute struct {
	Name   string
	Type   AttributeType
	Offset uint32
}

/**
 * @brief The layout of one vertex or instance buffer, supplied by the drawing frontend.
 */
type VertexFormat struct {
	Attributes []VertexAttribute
	Stride     uint32
	/** @brief Advance per instance instead of per vertex. */
	PerInstance bool
}

// Signature is a stable textual identity used in cache keys.
func (f VertexFormat) Signature() string {
	var sb strings.Builder
	if f.PerInstance {
		sb.WriteString("i")
	} else {
		sb.WriteString("v")
	}
	sb.WriteString(strconv.FormatUint(uint64(f.Stride), 10))
	for _, a := range f.Attributes {
		sb.WriteByte('|')
		sb.WriteString(a.Name)
		sb.WriteByte(':')
		sb.WriteString(a.Type.String())
		sb.WriteByte('@')
		sb.WriteString(strconv.FormatUint(uint64(a.Offset), 10))
	}
	return sb.String()
}

// VertexFormatsSignature joins the signatures of the formats of every bound buffer.
func VertexFormatsSignature(formats []VertexFormat) string {
	parts := make([]string, len(formats))
	for i, f := range formats {
		parts[i] = f.Signature()
	}
	return strings.Join(parts, ";")
}
