package metadata

import (
	"testing"

	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
)

func TestAttributeTypeFromString(t *testing.T) {
	tests := []struct {
		in      string
		want    AttributeType
		wantErr bool
	}{
		{"float", AttributeFloat, false},
		{"vec2", AttributeVec2, false},
		{"vec4", AttributeVec4, false},
		{"mat4", AttributeMat4, false},
		{"mat3", AttributeMat3, false},
		{"mat4x3", AttributeType{ScalarFloat32, 3, 4}, false},
		{"ivec2", AttributeIVec2, false},
		{"uvec4", AttributeUVec4, false},
		{"unorm8x4", AttributeColor, false},
		{"vec5", AttributeType{ScalarFloat32, 5, 1}, false},
		{"quaternion", AttributeType{}, true},
		{"vec", AttributeType{}, true},
	}
	for _, tt := range tests {
		got, err := AttributeTypeFromString(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("AttributeTypeFromString(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("AttributeTypeFromString(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestAttributeTypeValidate(t *testing.T) {
	if err := AttributeMat4.Validate(); err != nil {
		t.Errorf("mat4 Validate() = %v", err)
	}
	if err := (AttributeType{ScalarFloat32, 5, 1}).Validate(); err == nil {
		t.Error("5 component attribute should be rejected")
	}
	if err := (AttributeType{ScalarFloat32, 4, 5}).Validate(); err == nil {
		t.Error("5 row attribute should be rejected")
	}
	if err := (AttributeType{ScalarUnorm8, 3, 1}).Validate(); err == nil {
		t.Error("unorm8x3 has no vertex format and should be rejected")
	}
}

func TestAttributeTypeSizes(t *testing.T) {
	if AttributeMat4.Size() != 64 || AttributeMat4.RowSize() != 16 || AttributeMat4.Locations() != 4 {
		t.Errorf("mat4 size=%d row=%d locations=%d", AttributeMat4.Size(), AttributeMat4.RowSize(), AttributeMat4.Locations())
	}
	if f, _ := AttributeMat4.RowFormat(); f != driver.FormatR32G32B32A32Sfloat {
		t.Errorf("mat4 row format = %d", f)
	}
	if AttributeColor.Size() != 4 {
		t.Errorf("color size = %d, want 4", AttributeColor.Size())
	}
}

func TestVertexFormatSignatureDistinguishesLayouts(t *testing.T) {
	a := VertexFormat{Stride: 20, Attributes: []VertexAttribute{{Name: "pos", Type: AttributeVec3}, {Name: "uv", Type: AttributeVec2, Offset: 12}}}
	b := a
	b.PerInstance = true
	c := VertexFormat{Stride: 20, Attributes: []VertexAttribute{{Name: "pos", Type: AttributeVec3}, {Name: "uv", Type: AttributeVec2, Offset: 8}}}
	if a.Signature() == b.Signature() || a.Signature() == c.Signature() {
		t.Errorf("signatures collide: %q %q %q", a.Signature(), b.Signature(), c.Signature())
	}
}
