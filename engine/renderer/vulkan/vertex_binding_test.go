package vulkan

import (
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

func vertexInterface(t *testing.T, inputs ...metadata.StageInput) *ShaderInterface {
	t.Helper()
	stages := []metadata.StageReflection{{Stage: driver.ShaderStageVertex, Code: spirv, Inputs: inputs}}
	si, err := NewShaderInterface("vertex", stages, driver.DefaultLimits(), 2)
	if err != nil {
		t.Fatalf("NewShaderInterface() error = %v", err)
	}
	return si
}

func countLocation(l *VertexLayout, location uint32) int {
	n := 0
	for _, a := range l.Attributes {
		if a.Location == location {
			n++
		}
	}
	return n
}

func TestResolveVertexLayoutConflictLastBufferWins(t *testing.T) {
	si := vertexInterface(t,
		metadata.StageInput{Name: "position", Location: 0, Type: metadata.AttributeVec3},
		metadata.StageInput{Name: "color", Location: 1, Type: metadata.AttributeVec4},
	)
	formats := []metadata.VertexFormat{
		{Attributes: []metadata.VertexAttribute{
			{Name: "position", Type: metadata.AttributeVec3, Offset: 0},
			{Name: "color", Type: metadata.AttributeVec4, Offset: 12},
		}, Stride: 28},
		{Attributes: []metadata.VertexAttribute{
			{Name: "color", Type: metadata.AttributeVec4, Offset: 0},
		}, Stride: 16, PerInstance: true},
	}
	l, err := ResolveVertexLayout(si, formats)
	if err != nil {
		t.Fatalf("ResolveVertexLayout() error = %v", err)
	}
	if got := countLocation(l, 1); got != 1 {
		t.Fatalf("location 1 described %d times, want 1", got)
	}
	r, ok := l.Lookup(1)
	if !ok || r.BufferIndex != 1 || r.Offset != 0 {
		t.Errorf("Lookup(1) = %+v, want the instance buffer at offset 0", r)
	}
	unused := 0
	for _, rec := range l.Resolved {
		if rec.Location == metadata.UnusedLocation {
			unused++
			if rec.BufferIndex != 0 || rec.Name != "color" {
				t.Errorf("unused record = %+v, want color from buffer 0", rec)
			}
		}
	}
	if unused != 1 {
		t.Errorf("%d records lost their location, want 1", unused)
	}
	if len(l.Bindings) != 2 || l.Bindings[1].InputRate != driver.VertexInputRateInstance || l.Bindings[1].Stride != 16 {
		t.Errorf("Bindings = %+v", l.Bindings)
	}
}

func TestResolveVertexLayoutSplitsMatrices(t *testing.T) {
	si := vertexInterface(t,
		metadata.StageInput{Name: "position", Location: 0, Type: metadata.AttributeVec3},
		metadata.StageInput{Name: "model", Location: 2, Type: metadata.AttributeMat4},
	)
	formats := []metadata.VertexFormat{
		{Attributes: []metadata.VertexAttribute{{Name: "position", Type: metadata.AttributeVec3}}, Stride: 12},
		{Attributes: []metadata.VertexAttribute{{Name: "model", Type: metadata.AttributeMat4, Offset: 16}}, Stride: 80, PerInstance: true},
	}
	l, err := ResolveVertexLayout(si, formats)
	if err != nil {
		t.Fatalf("ResolveVertexLayout() error = %v", err)
	}
	rowSize := metadata.AttributeMat4.Size() / 4
	for row := uint32(0); row < 4; row++ {
		r, ok := l.Lookup(2 + row)
		if !ok {
			t.Fatalf("location %d missing", 2+row)
		}
		if r.Size != rowSize || r.Offset != 16+row*rowSize || r.Format != driver.FormatR32G32B32A32Sfloat || r.Binding != 1 {
			t.Errorf("row %d = %+v", row, r)
		}
	}
	if len(l.Attributes) != 5 {
		t.Errorf("%d attributes, want 5", len(l.Attributes))
	}
	for i := 1; i < len(l.Attributes); i++ {
		if l.Attributes[i].Location <= l.Attributes[i-1].Location {
			t.Errorf("attributes not sorted by location: %+v", l.Attributes)
		}
	}
}

func TestResolveVertexLayoutZeroBuffer(t *testing.T) {
	si := vertexInterface(t,
		metadata.StageInput{Name: "position", Location: 0, Type: metadata.AttributeVec3},
		metadata.StageInput{Name: "uv", Location: 1, Type: metadata.AttributeVec2},
		metadata.StageInput{Name: "normal", Location: 2, Type: metadata.AttributeVec3},
	)
	formats := []metadata.VertexFormat{
		{Attributes: []metadata.VertexAttribute{{Name: "position", Type: metadata.AttributeVec3}}},
		{Attributes: []metadata.VertexAttribute{{Name: "tangent", Type: metadata.AttributeVec4}}, Stride: 16},
	}
	l, err := ResolveVertexLayout(si, formats)
	if err != nil {
		t.Fatalf("ResolveVertexLayout() error = %v", err)
	}
	// The buffer supplying nothing the shader reads is not bound.
	if len(l.Bindings) != 2 || len(l.BufferSlots) != 2 {
		t.Fatalf("Bindings = %+v, slots = %v", l.Bindings, l.BufferSlots)
	}
	if l.Bindings[0].Stride != 12 {
		t.Errorf("packed stride = %d, want 12", l.Bindings[0].Stride)
	}
	zero := l.Bindings[1]
	if zero.Stride != 0 || zero.InputRate != driver.VertexInputRateInstance || l.BufferSlots[1] != -1 {
		t.Errorf("zero binding = %+v slot %d", zero, l.BufferSlots[1])
	}
	for _, loc := range []uint32{1, 2} {
		r, ok := l.Lookup(loc)
		if !ok || r.BufferIndex != -1 || r.Binding != 1 {
			t.Errorf("Lookup(%d) = %+v, want the zero buffer", loc, r)
		}
	}
	if r, _ := l.Lookup(1); r.Size+r.Offset > zeroBufferSize {
		t.Errorf("zero buffer read %d bytes past its end", r.Size+r.Offset-zeroBufferSize)
	}
}

func TestResolveVertexLayoutErrors(t *testing.T) {
	si := vertexInterface(t, metadata.StageInput{Name: "model", Location: 0, Type: metadata.AttributeMat4})

	_, err := ResolveVertexLayout(si, []metadata.VertexFormat{{Attributes: []metadata.VertexAttribute{
		{Name: "model", Type: metadata.AttributeType{Scalar: metadata.ScalarUnorm8, Components: 3, Rows: 1}},
	}}})
	var unsupported *core.UnsupportedAttributeError
	if !errors.As(err, &unsupported) {
		t.Errorf("unsupported attribute error = %v", err)
	}

	_, err = ResolveVertexLayout(si, []metadata.VertexFormat{{Attributes: []metadata.VertexAttribute{
		{Name: "model", Type: metadata.AttributeVec4},
	}}})
	if !core.IsConfigurationError(err) {
		t.Errorf("location count mismatch error = %v, want a configuration error", err)
	}
}

func TestVertexBindingCacheMemoizes(t *testing.T) {
	si := vertexInterface(t, metadata.StageInput{Name: "in_position", Location: 0, Type: metadata.AttributeVec3})
	a := &Shader{Name: "a", Identity: 1, Interface: si}
	b := &Shader{Name: "b", Identity: 2, Interface: si}
	cache := NewVertexBindingCache()
	formats := []metadata.VertexFormat{positionFormat}

	first, err := cache.Resolve(a, formats)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	second, _ := cache.Resolve(a, formats)
	if first != second {
		t.Error("Resolve() rebuilt a cached layout")
	}
	other, _ := cache.Resolve(b, formats)
	if other == first {
		t.Error("Resolve() shared a layout across shader identities")
	}
	if hits, misses := cache.Stats(); hits != 1 || misses != 2 {
		t.Errorf("Stats() = %d, %d, want 1, 2", hits, misses)
	}
	cache.Forget(a.Identity)
	if again, _ := cache.Resolve(a, formats); again == first {
		t.Error("Resolve() after Forget() returned the dropped layout")
	}
}
