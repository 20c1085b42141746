package vulkan

import (
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

func fragmentOnly(resources ...metadata.StageResource) []metadata.StageReflection {
	return []metadata.StageReflection{{Stage: driver.ShaderStageFragment, Code: spirv, Resources: resources}}
}

func ubo(name string, set, binding uint32) metadata.StageResource {
	return metadata.StageResource{Name: name, Kind: metadata.ResourceKindUniformBuffer, Set: set, Binding: binding, Size: 16}
}

func image(name string, set, binding uint32) metadata.StageResource {
	return metadata.StageResource{Name: name, Kind: metadata.ResourceKindSampledImage, Set: set, Binding: binding}
}

func TestBindingTableActiveAndPlaceholderEntries(t *testing.T) {
	tests := []struct {
		name      string
		resources []metadata.StageResource
		sets      []int
		active    int
	}{
		{
			name:      "contiguous",
			resources: []metadata.StageResource{ubo("a", 0, 0), ubo("b", 0, 1), image("t", 0, 2)},
			sets:      []int{3},
			active:    3,
		},
		{
			name:      "gap below the highest binding",
			resources: []metadata.StageResource{ubo("a", 0, 0), image("t", 0, 3), image("u", 0, 5)},
			sets:      []int{6},
			active:    3,
		},
		{
			name:      "sparse sets",
			resources: []metadata.StageResource{ubo("a", 0, 0), image("t", 2, 1)},
			sets:      []int{1, 0, 2},
			active:    2,
		},
		{
			name:      "no resources",
			resources: nil,
			sets:      []int{0},
			active:    0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			si, err := NewShaderInterface(tt.name, fragmentOnly(tt.resources...), driver.DefaultLimits(), 2)
			if err != nil {
				t.Fatalf("NewShaderInterface() error = %v", err)
			}
			if got := si.Layout.ActiveEntries(); got != tt.active {
				t.Errorf("ActiveEntries() = %d, want %d", got, tt.active)
			}
			if got := si.Layout.SetCount(); got != len(tt.sets) {
				t.Fatalf("SetCount() = %d, want %d", got, len(tt.sets))
			}
			for set, want := range tt.sets {
				entries := si.Layout.Sets[set]
				if len(entries) != want {
					t.Errorf("set %d has %d entries, want %d", set, len(entries), want)
				}
				for b, e := range entries {
					if e.Binding != uint32(b) {
						t.Errorf("set %d entry %d has binding %d", set, b, e.Binding)
					}
					_, declared := si.Resource(metadata.NewResourceLocation(uint32(set), uint32(b)))
					if e.Placeholder == declared {
						t.Errorf("set %d binding %d placeholder = %v, declared = %v", set, b, e.Placeholder, declared)
					}
				}
			}
		})
	}
}

func TestShaderInterfaceMergesStages(t *testing.T) {
	stages := []metadata.StageReflection{
		{Stage: driver.ShaderStageVertex, Code: spirv, Resources: []metadata.StageResource{ubo("globals", 0, 0)}},
		{Stage: driver.ShaderStageFragment, Code: spirv, Resources: []metadata.StageResource{ubo("globals", 0, 0), image("tex", 1, 0)}},
	}
	si, err := NewShaderInterface("merge", stages, driver.DefaultLimits(), 2)
	if err != nil {
		t.Fatalf("NewShaderInterface() error = %v", err)
	}
	loc := si.Location("globals")
	if loc != metadata.NewResourceLocation(0, 0) {
		t.Fatalf("Location(globals) = %s", loc)
	}
	rb, _ := si.Resource(loc)
	if rb.Stages != driver.ShaderStageVertex|driver.ShaderStageFragment {
		t.Errorf("globals stages = %#x, want vertex|fragment", rb.Stages)
	}
	if got := si.Location("missing"); got.Valid() {
		t.Errorf("Location(missing) = %s, want invalid", got)
	}
	entry, _ := si.Layout.Entry(1, 0)
	if entry.Type != driver.DescriptorTypeCombinedImageSampler {
		t.Errorf("tex descriptor type = %d", entry.Type)
	}
}

func TestShaderInterfaceConfigurationErrors(t *testing.T) {
	tests := []struct {
		name      string
		stages    []metadata.StageReflection
		duplicate bool
	}{
		{
			name: "size mismatch across stages",
			stages: []metadata.StageReflection{
				{Stage: driver.ShaderStageVertex, Code: spirv, Resources: []metadata.StageResource{{Name: "globals", Kind: metadata.ResourceKindUniformBuffer, Size: 64}}},
				{Stage: driver.ShaderStageFragment, Code: spirv, Resources: []metadata.StageResource{{Name: "globals", Kind: metadata.ResourceKindUniformBuffer, Size: 128}}},
			},
			duplicate: true,
		},
		{
			name: "kind mismatch across stages",
			stages: []metadata.StageReflection{
				{Stage: driver.ShaderStageVertex, Code: spirv, Resources: []metadata.StageResource{ubo("thing", 0, 0)}},
				{Stage: driver.ShaderStageFragment, Code: spirv, Resources: []metadata.StageResource{image("thing", 0, 0)}},
			},
			duplicate: true,
		},
		{
			name: "array count mismatch on one slot",
			stages: []metadata.StageReflection{
				{Stage: driver.ShaderStageVertex, Code: spirv, Resources: []metadata.StageResource{{Name: "a", Kind: metadata.ResourceKindSampledImage, ArrayCount: 2}}},
				{Stage: driver.ShaderStageFragment, Code: spirv, Resources: []metadata.StageResource{{Name: "b", Kind: metadata.ResourceKindSampledImage, ArrayCount: 4}}},
			},
		},
		{
			name: "stage declared twice",
			stages: []metadata.StageReflection{
				{Stage: driver.ShaderStageFragment, Code: spirv},
				{Stage: driver.ShaderStageFragment, Code: spirv},
			},
		},
		{
			name: "overlapping vertex attributes",
			stages: []metadata.StageReflection{{Stage: driver.ShaderStageVertex, Code: spirv, Inputs: []metadata.StageInput{
				{Name: "model", Location: 0, Type: metadata.AttributeMat4},
				{Name: "normal", Location: 2, Type: metadata.AttributeVec3},
			}}},
		},
		{
			name: "too many descriptor sets",
			stages: fragmentOnly(ubo("far", 7, 0)),
		},
		{
			name: "overlapping push constants",
			stages: []metadata.StageReflection{{Stage: driver.ShaderStageVertex, Code: spirv, PushConstants: []metadata.PushConstantMember{
				{Name: "model", Offset: 0, Size: 64},
				{Name: "tint", Offset: 60, Size: 16},
			}}},
		},
		{
			name: "push constants beyond the device limit",
			stages: []metadata.StageReflection{{Stage: driver.ShaderStageVertex, Code: spirv, PushConstants: []metadata.PushConstantMember{
				{Name: "big", Offset: 120, Size: 16},
			}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewShaderInterface("broken", tt.stages, driver.DefaultLimits(), 2)
			if err == nil {
				t.Fatal("NewShaderInterface() succeeded, want a configuration error")
			}
			if !core.IsConfigurationError(err) {
				t.Errorf("error %v is not a configuration error", err)
			}
			var dup *core.DuplicateResourceError
			if got := errors.As(err, &dup); got != tt.duplicate {
				t.Errorf("errors.As(DuplicateResourceError) = %v, want %v (%v)", got, tt.duplicate, err)
			}
		})
	}
}

func TestShaderInterfaceUnsupportedAttribute(t *testing.T) {
	stages := []metadata.StageReflection{{Stage: driver.ShaderStageVertex, Code: spirv, Inputs: []metadata.StageInput{
		{Name: "wide", Location: 0, Type: metadata.AttributeType{Scalar: metadata.ScalarFloat32, Components: 5, Rows: 1}},
	}}}
	_, err := NewShaderInterface("wide", stages, driver.DefaultLimits(), 2)
	var unsupported *core.UnsupportedAttributeError
	if !errors.As(err, &unsupported) {
		t.Fatalf("error = %v, want UnsupportedAttributeError", err)
	}
	if unsupported.Attribute != "wide" || unsupported.Shader != "wide" {
		t.Errorf("error names shader %q attribute %q", unsupported.Shader, unsupported.Attribute)
	}
}

func TestShaderInterfacePushConstantsAndInlineUniforms(t *testing.T) {
	stages := []metadata.StageReflection{
		{
			Stage:         driver.ShaderStageVertex,
			Code:          spirv,
			PushConstants: []metadata.PushConstantMember{{Name: "model", Offset: 0, Size: 64}},
		},
		{
			Stage:         driver.ShaderStageFragment,
			Code:          spirv,
			PushConstants: []metadata.PushConstantMember{{Name: "tint", Offset: 64, Size: 12}},
			Resources: []metadata.StageResource{
				{Name: "material", Kind: metadata.ResourceKindInlineUniform, Offset: 80, Size: 16},
				ubo("globals", 0, 0),
			},
		},
	}
	si, err := NewShaderInterface("push", stages, driver.DefaultLimits(), 2)
	if err != nil {
		t.Fatalf("NewShaderInterface() error = %v", err)
	}
	want := PushConstantRange{Offset: 0, Size: 96, Stages: driver.ShaderStageVertex | driver.ShaderStageFragment}
	if si.PushConstants != want {
		t.Errorf("PushConstants = %+v, want %+v", si.PushConstants, want)
	}
	loc := si.Location("material")
	if !loc.IsInline() {
		t.Fatalf("Location(material) = %s, want an inline location", loc)
	}
	blk, ok := si.InlineUniform(loc)
	if !ok || blk.Offset != 80 || blk.Size != 16 {
		t.Errorf("InlineUniform() = %+v, %v", blk, ok)
	}
	// Inline uniforms never occupy a descriptor binding.
	if got := si.Layout.ActiveEntries(); got != 1 {
		t.Errorf("ActiveEntries() = %d, want 1", got)
	}
	if m, ok := si.PushConstant("tint"); !ok || m.Offset != 64 || m.Stages != driver.ShaderStageFragment {
		t.Errorf("PushConstant(tint) = %+v, %v", m, ok)
	}
}

func TestShaderInterfacePoolPlan(t *testing.T) {
	si, err := NewShaderInterface("plan", fragmentOnly(ubo("a", 0, 0), ubo("b", 0, 1), image("t", 0, 2)), driver.DefaultLimits(), 3)
	if err != nil {
		t.Fatalf("NewShaderInterface() error = %v", err)
	}
	plan := si.PoolPlan[0]
	if plan.MaxSets != 3 {
		t.Errorf("MaxSets = %d, want 3", plan.MaxSets)
	}
	counts := map[driver.DescriptorType]uint32{}
	for _, s := range plan.Sizes {
		counts[s.Type] = s.Count
	}
	if counts[driver.DescriptorTypeUniformBuffer] != 6 || counts[driver.DescriptorTypeCombinedImageSampler] != 3 {
		t.Errorf("pool sizes = %+v", plan.Sizes)
	}

	empty, err := NewShaderInterface("empty", fragmentOnly(), driver.DefaultLimits(), 2)
	if err != nil {
		t.Fatalf("NewShaderInterface(empty) error = %v", err)
	}
	if len(empty.PoolPlan) != 1 {
		t.Fatalf("empty shader has %d pool plans, want 1", len(empty.PoolPlan))
	}
	if sizes := empty.PoolPlan[0].Sizes; len(sizes) != 1 || sizes[0].Count != 1 {
		t.Errorf("empty shader pool sizes = %+v, want one dummy entry", sizes)
	}
}
