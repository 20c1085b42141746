package vulkan

import (
	"fmt"
	"sort"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

// ResourceBinding is a resource after merging the declarations of every stage.
type ResourceBinding struct {
	Name       string
	Kind       metadata.ResourceKind
	Location   metadata.ShaderResourceLocation
	Set        uint32
	Binding    uint32
	ArrayCount uint32
	Size       uint32
	Stages     driver.ShaderStage
}

// BindingTableEntry is one binding of a descriptor set layout.
type BindingTableEntry struct {
	Binding    uint32
	Kind       metadata.ResourceKind
	Type       driver.DescriptorType
	Stages     driver.ShaderStage
	ArrayCount uint32
	// Placeholder entries fill gaps below the highest binding and are never written.
	Placeholder bool
	Name        string
}

// BindingTableLayout lists, per descriptor set index, contiguous bindings from 0.
type BindingTableLayout struct {
	Sets [][]BindingTableEntry
}

func (l BindingTableLayout) SetCount() int {
	return len(l.Sets)
}

// ActiveEntries counts the non placeholder entries of every set.
func (l BindingTableLayout) ActiveEntries() int {
	n := 0
	for _, set := range l.Sets {
		for _, e := range set {
			if !e.Placeholder {
				n++
			}
		}
	}
	return n
}

func (l BindingTableLayout) Entry(set, binding uint32) (BindingTableEntry, bool) {
	if int(set) >= len(l.Sets) || int(binding) >= len(l.Sets[set]) {
		return BindingTableEntry{}, false
	}
	return l.Sets[set][binding], true
}

// DeviceBindings converts one set into the device layout description.
func (l BindingTableLayout) DeviceBindings(set uint32) []driver.DescriptorSetLayoutBinding {
	entries := l.Sets[set]
	out := make([]driver.DescriptorSetLayoutBinding, len(entries))
	for i, e := range entries {
		out[i] = driver.DescriptorSetLayoutBinding{
			Binding: e.Binding,
			Type:    e.Type,
			Count:   e.ArrayCount,
			Stages:  e.Stages,
		}
	}
	return out
}

// PushConstantRange covers every push constant member and inline uniform.
// A zero Size means the shader has no push constants.
type PushConstantRange struct {
	Offset uint32
	Size   uint32
	Stages driver.ShaderStage
}

func (r PushConstantRange) End() uint32 {
	return r.Offset + r.Size
}

// PushConstantBinding is a push constant member merged across stages.
type PushConstantBinding struct {
	Name   string
	Offset uint32
	Size   uint32
	Stages driver.ShaderStage
}

// InlineUniform is a uniform block stored in push constant storage.
type InlineUniform struct {
	Name     string
	Location metadata.ShaderResourceLocation
	Offset   uint32
	Size     uint32
	Stages   driver.ShaderStage
}

// VertexInput is an attribute the vertex stage consumes.
type VertexInput struct {
	Name     string
	Location uint32
	Type     metadata.AttributeType
}

// ShaderInterface is the binding table of a shader derived from the
// reflection of its stages. It is built once, when the shader is finalized.
type ShaderInterface struct {
	Name string

	Layout        BindingTableLayout
	PushConstants PushConstantRange
	Inline        []InlineUniform
	Attributes    []VertexInput
	// PoolPlan holds one descriptor pool description per set, sized for the
	// rotation depth.
	PoolPlan []driver.DescriptorPoolDesc

	locations map[string]metadata.ShaderResourceLocation
	resources map[metadata.ShaderResourceLocation]*ResourceBinding
	members   map[string]PushConstantBinding
	attrs     map[string]VertexInput
}

type slotKey struct {
	set, binding uint32
}

// NewShaderInterface merges the reflection of every stage. Every inconsistency
// between stages is reported here as a configuration error naming the shader
// and the resource.
func NewShaderInterface(name string, stages []metadata.StageReflection, limits driver.Limits, rotation int) (*ShaderInterface, error) {
	if len(stages) == 0 {
		return nil, core.NewConfigurationError(name, "no stages")
	}
	if rotation < 1 {
		rotation = 1
	}
	si := &ShaderInterface{
		Name:      name,
		locations: make(map[string]metadata.ShaderResourceLocation),
		resources: make(map[metadata.ShaderResourceLocation]*ResourceBinding),
		members:   make(map[string]PushConstantBinding),
		attrs:     make(map[string]VertexInput),
	}
	seenStages := driver.ShaderStage(0)
	for _, st := range stages {
		if seenStages&st.Stage != 0 {
			return nil, core.NewConfigurationError(name, "stage %s declared twice", st.Stage)
		}
		seenStages |= st.Stage
	}

	if err := si.reflectAttributes(stages, limits); err != nil {
		return nil, err
	}
	if err := si.reflectResources(stages); err != nil {
		return nil, err
	}
	if err := si.buildLayout(limits); err != nil {
		return nil, err
	}
	if err := si.reflectPushConstants(stages, limits); err != nil {
		return nil, err
	}
	si.planPools(rotation)
	return si, nil
}

func (si *ShaderInterface) reflectAttributes(stages []metadata.StageReflection, limits driver.Limits) error {
	for _, st := range stages {
		if st.Stage != driver.ShaderStageVertex {
			continue
		}
		for _, in := range st.Inputs {
			if err := in.Type.Validate(); err != nil {
				core.LogError("shader `%s`: vertex attribute `%s`: %s", si.Name, in.Name, err.Error())
				return core.NewUnsupportedAttributeError(si.Name, in.Name, in.Type.String())
			}
			if _, dup := si.attrs[in.Name]; dup {
				return core.NewDuplicateResourceError(si.Name, in.Name, "vertex attribute declared twice")
			}
			v := VertexInput{Name: in.Name, Location: in.Location, Type: in.Type}
			si.attrs[in.Name] = v
			si.Attributes = append(si.Attributes, v)
		}
	}
	sort.Slice(si.Attributes, func(i, j int) bool {
		return si.Attributes[i].Location < si.Attributes[j].Location
	})
	// Matrices occupy one location per row; ranges must not overlap.
	used := uint32(0)
	for i, a := range si.Attributes {
		if i > 0 && a.Location < used {
			return core.NewConfigurationError(si.Name, "vertex attribute `%s` at location %d overlaps `%s`", a.Name, a.Location, si.Attributes[i-1].Name)
		}
		used = a.Location + a.Type.Locations()
	}
	if used > limits.MaxVertexInputAttributes {
		return core.NewConfigurationError(si.Name, "vertex attributes use %d locations, device supports %d", used, limits.MaxVertexInputAttributes)
	}
	return nil
}

func normalizeArrayCount(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	return n
}

func (si *ShaderInterface) reflectResources(stages []metadata.StageReflection) error {
	var (
		ordered []*ResourceBinding
		byName  = make(map[string]*ResourceBinding)
		bySlot  = make(map[slotKey]*ResourceBinding)
		inline  = make(map[string]*InlineUniform)
	)
	for _, st := range stages {
		for _, res := range st.Resources {
			if res.Kind == metadata.ResourceKindInlineUniform {
				if err := si.mergeInline(inline, st.Stage, res); err != nil {
					return err
				}
				continue
			}
			count := normalizeArrayCount(res.ArrayCount)
			if res.Set > metadata.MaxDescriptorSets || res.Binding > metadata.MaxBindings {
				return core.NewConfigurationError(si.Name, "resource `%s` at set %d binding %d is out of range", res.Name, res.Set, res.Binding)
			}
			if prev, ok := byName[res.Name]; ok {
				switch {
				case prev.Kind != res.Kind:
					return core.NewDuplicateResourceError(si.Name, res.Name, "kind %s vs %s", prev.Kind, res.Kind)
				case prev.Size != res.Size:
					return core.NewDuplicateResourceError(si.Name, res.Name, "size %d vs %d", prev.Size, res.Size)
				case prev.ArrayCount != count:
					return core.NewDuplicateResourceError(si.Name, res.Name, "array count %d vs %d", prev.ArrayCount, count)
				case prev.Set != res.Set || prev.Binding != res.Binding:
					return core.NewDuplicateResourceError(si.Name, res.Name, "slot set=%d binding=%d vs set=%d binding=%d", prev.Set, prev.Binding, res.Set, res.Binding)
				}
				prev.Stages |= st.Stage
				continue
			}
			slot := slotKey{res.Set, res.Binding}
			if prev, ok := bySlot[slot]; ok {
				// Different names for the same slot must describe the same resource.
				if prev.Kind != res.Kind {
					return core.NewConfigurationError(si.Name, "set %d binding %d declared as %s (`%s`) and %s (`%s`)", res.Set, res.Binding, prev.Kind, prev.Name, res.Kind, res.Name)
				}
				if prev.ArrayCount != count {
					return core.NewConfigurationError(si.Name, "set %d binding %d has array count %d (`%s`) and %d (`%s`)", res.Set, res.Binding, prev.ArrayCount, prev.Name, count, res.Name)
				}
				prev.Stages |= st.Stage
				byName[res.Name] = prev
				si.locations[res.Name] = prev.Location
				continue
			}
			rb := &ResourceBinding{
				Name:       res.Name,
				Kind:       res.Kind,
				Location:   metadata.NewResourceLocation(res.Set, res.Binding),
				Set:        res.Set,
				Binding:    res.Binding,
				ArrayCount: count,
				Size:       res.Size,
				Stages:     st.Stage,
			}
			byName[res.Name] = rb
			bySlot[slot] = rb
			ordered = append(ordered, rb)
			si.locations[res.Name] = rb.Location
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Set != ordered[j].Set {
			return ordered[i].Set < ordered[j].Set
		}
		return ordered[i].Binding < ordered[j].Binding
	})
	for _, rb := range ordered {
		si.resources[rb.Location] = rb
	}

	// Inline blocks are addressed by their order in push constant storage.
	for _, blk := range inline {
		si.Inline = append(si.Inline, *blk)
	}
	sort.Slice(si.Inline, func(i, j int) bool {
		return si.Inline[i].Offset < si.Inline[j].Offset
	})
	for i := range si.Inline {
		blk := &si.Inline[i]
		if _, clash := si.locations[blk.Name]; clash {
			return core.NewDuplicateResourceError(si.Name, blk.Name, "inline uniform shares its name with a descriptor resource")
		}
		blk.Location = metadata.NewInlineLocation(uint32(i))
		si.locations[blk.Name] = blk.Location
	}
	return nil
}

func (si *ShaderInterface) mergeInline(inline map[string]*InlineUniform, stage driver.ShaderStage, res metadata.StageResource) error {
	if res.Size == 0 {
		return core.NewConfigurationError(si.Name, "inline uniform `%s` has no size", res.Name)
	}
	if prev, ok := inline[res.Name]; ok {
		if prev.Size != res.Size || prev.Offset != res.Offset {
			return core.NewDuplicateResourceError(si.Name, res.Name, "inline uniform at %d+%d vs %d+%d", prev.Offset, prev.Size, res.Offset, res.Size)
		}
		prev.Stages |= stage
		return nil
	}
	inline[res.Name] = &InlineUniform{
		Name:   res.Name,
		Offset: res.Offset,
		Size:   res.Size,
		Stages: stage,
	}
	return nil
}

func (si *ShaderInterface) buildLayout(limits driver.Limits) error {
	maxSet := uint32(0)
	for _, rb := range si.resources {
		if rb.Set > maxSet {
			maxSet = rb.Set
		}
	}
	setCount := maxSet + 1
	if limits.MaxBoundDescriptorSets > 0 && setCount > limits.MaxBoundDescriptorSets {
		return core.NewConfigurationError(si.Name, "uses %d descriptor sets, device supports %d", setCount, limits.MaxBoundDescriptorSets)
	}

	maxBinding := make([]int, setCount)
	for i := range maxBinding {
		maxBinding[i] = -1
	}
	for _, rb := range si.resources {
		if int(rb.Binding) > maxBinding[rb.Set] {
			maxBinding[rb.Set] = int(rb.Binding)
		}
	}
	si.Layout.Sets = make([][]BindingTableEntry, setCount)
	for set := uint32(0); set < setCount; set++ {
		entries := make([]BindingTableEntry, maxBinding[set]+1)
		for b := range entries {
			entries[b] = BindingTableEntry{
				Binding:     uint32(b),
				Kind:        metadata.ResourceKindUniformBuffer,
				Type:        driver.DescriptorTypeUniformBuffer,
				Placeholder: true,
			}
		}
		si.Layout.Sets[set] = entries
	}
	for _, rb := range si.resources {
		dt, _ := rb.Kind.DescriptorType()
		si.Layout.Sets[rb.Set][rb.Binding] = BindingTableEntry{
			Binding:    rb.Binding,
			Kind:       rb.Kind,
			Type:       dt,
			Stages:     rb.Stages,
			ArrayCount: rb.ArrayCount,
			Name:       rb.Name,
		}
	}
	return nil
}

type pushSpan struct {
	name         string
	offset, size uint32
}

func (si *ShaderInterface) reflectPushConstants(stages []metadata.StageReflection, limits driver.Limits) error {
	var spans []pushSpan
	for _, st := range stages {
		for _, m := range st.PushConstants {
			if m.Size == 0 {
				return core.NewConfigurationError(si.Name, "push constant `%s` has no size", m.Name)
			}
			if prev, ok := si.members[m.Name]; ok {
				if prev.Offset != m.Offset || prev.Size != m.Size {
					return core.NewDuplicateResourceError(si.Name, m.Name, "push constant at %d+%d vs %d+%d", prev.Offset, prev.Size, m.Offset, m.Size)
				}
				prev.Stages |= st.Stage
				si.members[m.Name] = prev
				continue
			}
			if _, clash := si.locations[m.Name]; clash {
				return core.NewDuplicateResourceError(si.Name, m.Name, "push constant shares its name with a resource")
			}
			si.members[m.Name] = PushConstantBinding{Name: m.Name, Offset: m.Offset, Size: m.Size, Stages: st.Stage}
			spans = append(spans, pushSpan{m.Name, m.Offset, m.Size})
		}
	}
	for _, blk := range si.Inline {
		spans = append(spans, pushSpan{blk.Name, blk.Offset, blk.Size})
	}
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].offset < spans[j].offset })
	for i := 1; i < len(spans); i++ {
		prev := spans[i-1]
		if spans[i].offset < prev.offset+prev.size {
			return core.NewConfigurationError(si.Name, "push constant `%s` overlaps `%s`", spans[i].name, prev.name)
		}
	}

	start := spans[0].offset
	end := uint32(0)
	for _, s := range spans {
		if s.offset+s.size > end {
			end = s.offset + s.size
		}
	}
	stagesMask := driver.ShaderStage(0)
	for _, m := range si.members {
		stagesMask |= m.Stages
	}
	for _, blk := range si.Inline {
		stagesMask |= blk.Stages
	}
	// Ranges must be 4 byte aligned.
	start &^= 3
	end = core.AlignUp(end, 4)
	if end > limits.MaxPushConstantsSize {
		return core.NewConfigurationError(si.Name, "push constants end at byte %d, device supports %d", end, limits.MaxPushConstantsSize)
	}
	si.PushConstants = PushConstantRange{Offset: start, Size: end - start, Stages: stagesMask}
	return nil
}

func (si *ShaderInterface) planPools(rotation int) {
	si.PoolPlan = make([]driver.DescriptorPoolDesc, len(si.Layout.Sets))
	for set, entries := range si.Layout.Sets {
		counts := make(map[driver.DescriptorType]uint32)
		var order []driver.DescriptorType
		for _, e := range entries {
			if e.Placeholder {
				continue
			}
			if _, ok := counts[e.Type]; !ok {
				order = append(order, e.Type)
			}
			counts[e.Type] += e.ArrayCount
		}
		desc := driver.DescriptorPoolDesc{MaxSets: uint32(rotation)}
		for _, t := range order {
			desc.Sizes = append(desc.Sizes, driver.PoolSize{Type: t, Count: counts[t] * uint32(rotation)})
		}
		if len(desc.Sizes) == 0 {
			// A set without descriptors still needs a valid pool.
			desc.Sizes = []driver.PoolSize{{Type: driver.DescriptorTypeUniformBuffer, Count: 1}}
		}
		si.PoolPlan[set] = desc
	}
}

// Location returns the location of a resource or inline uniform, or
// metadata.InvalidLocation.
func (si *ShaderInterface) Location(name string) metadata.ShaderResourceLocation {
	if loc, ok := si.locations[name]; ok {
		return loc
	}
	return metadata.InvalidLocation
}

func (si *ShaderInterface) Resource(loc metadata.ShaderResourceLocation) (*ResourceBinding, bool) {
	rb, ok := si.resources[loc]
	return rb, ok
}

// Resources returns the merged resources sorted by set and binding.
func (si *ShaderInterface) Resources() []*ResourceBinding {
	out := make([]*ResourceBinding, 0, len(si.resources))
	for _, rb := range si.resources {
		out = append(out, rb)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Set != out[j].Set {
			return out[i].Set < out[j].Set
		}
		return out[i].Binding < out[j].Binding
	})
	return out
}

func (si *ShaderInterface) InlineUniform(loc metadata.ShaderResourceLocation) (InlineUniform, bool) {
	if !loc.IsInline() || int(loc.InlineIndex()) >= len(si.Inline) {
		return InlineUniform{}, false
	}
	return si.Inline[loc.InlineIndex()], true
}

func (si *ShaderInterface) PushConstant(name string) (PushConstantBinding, bool) {
	m, ok := si.members[name]
	return m, ok
}

func (si *ShaderInterface) Attribute(name string) (VertexInput, bool) {
	a, ok := si.attrs[name]
	return a, ok
}

func (si *ShaderInterface) String() string {
	return fmt.Sprintf("shader `%s`: %d sets, %d resources, %d inline, push %d+%d", si.Name, len(si.Layout.Sets), len(si.resources), len(si.Inline), si.PushConstants.Offset, si.PushConstants.Size)
}
