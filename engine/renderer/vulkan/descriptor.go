package vulkan

import (
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

// BoundResource is the device resource bound to a location. Buffer kinds use
// Buffer, Offset and Size; image kinds use View and Layout; samplers and
// sampled images use Sampler.
type BoundResource struct {
	Buffer  driver.Buffer
	Offset  uint64
	Size    uint64
	View    driver.ImageView
	Layout  driver.ImageLayout
	Sampler driver.Sampler
}

// PendingBinding is a bind call not yet written into a descriptor set.
type PendingBinding struct {
	Location metadata.ShaderResourceLocation
	Kind     metadata.ResourceKind
	Resource BoundResource
}

// shaderBindings is the binding state of one shader.
type shaderBindings struct {
	pending map[metadata.ShaderResourceLocation]PendingBinding
	// Every binding written so far.
	state   map[metadata.ShaderResourceLocation]PendingBinding
	current []*PhysicalDescriptorSet

	boundRecorder   *CommandRecorder
	boundGeneration uint64
}

func newShaderBindings(s *Shader) *shaderBindings {
	return &shaderBindings{
		pending: make(map[metadata.ShaderResourceLocation]PendingBinding),
		state:   make(map[metadata.ShaderResourceLocation]PendingBinding),
		current: make([]*PhysicalDescriptorSet, len(s.Interface.Layout.Sets)),
	}
}

// DescriptorSetTracker collects the bindings issued between draws and writes
// them into fresh descriptor sets at most once per draw. Bindings are kept per
// shader, so switching back to a shader restores what was bound for it.
type DescriptorSetTracker struct {
	ctx    *DeviceContext
	shader *Shader
	*shaderBindings

	byShader map[uint64]*shaderBindings
}

func NewDescriptorSetTracker(ctx *DeviceContext) *DescriptorSetTracker {
	return &DescriptorSetTracker{
		ctx:      ctx,
		byShader: make(map[uint64]*shaderBindings),
	}
}

// SetShader switches the binding table to the one of s.
func (t *DescriptorSetTracker) SetShader(s *Shader) {
	if t.shader == s {
		return
	}
	t.shader = s
	if s == nil {
		t.shaderBindings = nil
		return
	}
	sb, ok := t.byShader[s.Identity]
	if !ok {
		sb = newShaderBindings(s)
		t.byShader[s.Identity] = sb
	}
	// Another shader may have bound its sets in between.
	sb.boundRecorder = nil
	sb.boundGeneration = 0
	t.shaderBindings = sb
}

// Adopt carries the bindings made for from over to to, matching resources by
// name. Values whose resource is gone or changed kind are dropped; the next
// flush reports what is left unbound.
func (t *DescriptorSetTracker) Adopt(from, to *Shader) {
	old, ok := t.byShader[from.Identity]
	if !ok {
		return
	}
	sb, ok := t.byShader[to.Identity]
	if !ok {
		sb = newShaderBindings(to)
		t.byShader[to.Identity] = sb
	}
	carry := func(values map[metadata.ShaderResourceLocation]PendingBinding) {
		for loc, pb := range values {
			rb, ok := from.Interface.Resource(loc)
			if !ok {
				continue
			}
			nloc := to.Interface.Location(rb.Name)
			nrb, ok := to.Interface.Resource(nloc)
			if !ok || nrb.Kind != rb.Kind {
				continue
			}
			pb.Location = nloc
			sb.pending[nloc] = pb
		}
	}
	carry(old.state)
	carry(old.pending)
}

// Forget drops the bindings kept for a shader identity.
func (t *DescriptorSetTracker) Forget(identity uint64) {
	delete(t.byShader, identity)
	if t.shader != nil && t.shader.Identity == identity {
		t.shader = nil
		t.shaderBindings = nil
	}
}

func kindsCompatible(declared, bound metadata.ResourceKind) bool {
	if declared == bound {
		return true
	}
	// Either image kind may be bound; the declared kind picks the descriptor type.
	return (declared == metadata.ResourceKindTexture && bound == metadata.ResourceKindSampledImage) ||
		(declared == metadata.ResourceKindSampledImage && bound == metadata.ResourceKindTexture)
}

// Bind records res for loc, replacing any earlier pending value.
func (t *DescriptorSetTracker) Bind(kind metadata.ResourceKind, loc metadata.ShaderResourceLocation, res BoundResource) error {
	if t.shader == nil {
		return errors.New("bind without a bound shader")
	}
	if !loc.Valid() || loc.IsInline() {
		return errors.Newf("shader `%s`: location %s cannot take a %s", t.shader.Name, loc, kind)
	}
	rb, ok := t.shader.Interface.Resource(loc)
	if !ok {
		return errors.Newf("shader `%s` has no resource at %s", t.shader.Name, loc)
	}
	if !kindsCompatible(rb.Kind, kind) {
		return errors.Newf("shader `%s`: resource `%s` is a %s, got %s", t.shader.Name, rb.Name, rb.Kind, kind)
	}
	if kind.IsBuffer() && rb.Size > 0 && res.Size > 0 && res.Size < uint64(rb.Size) {
		return errors.Newf("shader `%s`: buffer bound to `%s` has %d bytes, needs %d", t.shader.Name, rb.Name, res.Size, rb.Size)
	}
	t.pending[loc] = PendingBinding{Location: loc, Kind: rb.Kind, Resource: res}
	return nil
}

// PendingCount returns how many bindings wait for the next flush.
func (t *DescriptorSetTracker) PendingCount() int {
	if t.shaderBindings == nil {
		return 0
	}
	return len(t.pending)
}

// Current returns the physical set bound for a set index.
func (t *DescriptorSetTracker) Current(set uint32) *PhysicalDescriptorSet {
	if t.shaderBindings == nil || int(set) >= len(t.current) {
		return nil
	}
	return t.current[set]
}

func (t *DescriptorSetTracker) allBound() bool {
	for _, ps := range t.current {
		if ps == nil {
			return false
		}
	}
	return true
}

// Flush makes the descriptor sets match the bindings before a draw. Without
// new bindings the sets bound earlier in the same command buffer remain valid
// and nothing is recorded; in a new command buffer they are bound again.
// Otherwise every set touched by a pending binding is replaced by a fresh set
// from the pool, all of them written with one batched update. It reports
// whether new sets were written.
func (t *DescriptorSetTracker) Flush(rec *CommandRecorder) (bool, error) {
	if t.shader == nil {
		return false, errors.New("flush without a bound shader")
	}
	sameCommandBuffer := t.boundRecorder == rec && t.boundGeneration == rec.Generation()
	if len(t.pending) == 0 && t.allBound() {
		if sameCommandBuffer {
			return false, nil
		}
		t.bind(rec)
		return false, nil
	}

	dirty := make(map[uint32]bool)
	for loc := range t.pending {
		dirty[loc.Set()] = true
	}
	for set, ps := range t.current {
		if ps == nil {
			dirty[uint32(set)] = true
		}
	}
	sets := make([]uint32, 0, len(dirty))
	for set := range dirty {
		sets = append(sets, set)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i] < sets[j] })
	if err := t.checkComplete(dirty); err != nil {
		return false, err
	}

	// Acquire every set first so a failure leaves the tracker untouched.
	fresh := make(map[uint32]*PhysicalDescriptorSet, len(sets))
	for _, set := range sets {
		ps, err := t.shader.Pool(set).Acquire(rec.Serial())
		if err != nil {
			return false, err
		}
		fresh[set] = ps
	}

	for loc, pb := range t.pending {
		t.state[loc] = pb
	}
	clear(t.pending)

	var writes []driver.DescriptorWrite
	perSet := make(map[uint32]int)
	for _, loc := range t.sortedState() {
		ps, ok := fresh[loc.Set()]
		if !ok {
			continue
		}
		writes = append(writes, t.write(ps.Handle, t.state[loc]))
		perSet[loc.Set()]++
	}
	if len(writes) > 0 {
		t.ctx.Device.UpdateDescriptorSets(writes)
	}
	for _, set := range sets {
		t.current[set] = fresh[set]
	}
	t.bind(rec)

	stats := t.ctx.Metrics.Current()
	stats.DescriptorFlushes++
	stats.DescriptorWrites += uint64(len(writes))
	for _, set := range sets {
		t.ctx.Events.Fire(core.EVENT_CODE_DESCRIPTOR_FLUSH, t,
			core.String("shader", t.shader.Name),
			core.Uint("set", uint64(set)),
			core.Uint("descriptor_set", uint64(fresh[set].Handle)),
			core.Int("writes", int64(perSet[set])),
			core.Uint("serial", rec.Serial()),
		)
	}
	return true, nil
}

// checkComplete fails when a resource of a set about to be written has never
// been bound. Placeholder entries need no value.
func (t *DescriptorSetTracker) checkComplete(dirty map[uint32]bool) error {
	for _, rb := range t.shader.Interface.Resources() {
		if !dirty[rb.Set] {
			continue
		}
		if _, ok := t.pending[rb.Location]; ok {
			continue
		}
		if _, ok := t.state[rb.Location]; ok {
			continue
		}
		return core.NewConfigurationError(t.shader.Name, "resource `%s` (set %d, binding %d) is not bound", rb.Name, rb.Set, rb.Binding)
	}
	return nil
}

func (t *DescriptorSetTracker) sortedState() []metadata.ShaderResourceLocation {
	locs := make([]metadata.ShaderResourceLocation, 0, len(t.state))
	for loc := range t.state {
		locs = append(locs, loc)
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i] < locs[j] })
	return locs
}

func (t *DescriptorSetTracker) write(set driver.DescriptorSet, pb PendingBinding) driver.DescriptorWrite {
	dt, _ := pb.Kind.DescriptorType()
	w := driver.DescriptorWrite{
		Set:     set,
		Binding: pb.Location.Binding(),
		Type:    dt,
	}
	r := pb.Resource
	switch pb.Kind {
	case metadata.ResourceKindUniformBuffer, metadata.ResourceKindStorageBuffer:
		size := r.Size
		if size == 0 {
			size = wholeSize
		}
		w.Buffers = []driver.BufferInfo{{Buffer: r.Buffer, Offset: r.Offset, Range: size}}
	case metadata.ResourceKindSampler:
		w.Images = []driver.ImageInfo{{Sampler: r.Sampler}}
	default:
		layout := r.Layout
		if layout == driver.ImageLayoutUndefined {
			layout = driver.ImageLayoutShaderReadOnlyOptimal
			if pb.Kind == metadata.ResourceKindStorageImage {
				layout = driver.ImageLayoutGeneral
			}
		}
		w.Images = []driver.ImageInfo{{Sampler: r.Sampler, View: r.View, Layout: layout}}
	}
	return w
}

// wholeSize binds a buffer from its offset to its end.
const wholeSize = ^uint64(0)

func (t *DescriptorSetTracker) bind(rec *CommandRecorder) {
	handles := make([]driver.DescriptorSet, len(t.current))
	pool := t.shader.pools
	for i, ps := range t.current {
		handles[i] = ps.Handle
		pool[i].Touch(ps, rec.Serial())
	}
	rec.BindDescriptorSets(t.shader.PipelineLayout(), 0, handles)
	t.shader.Touch(rec.Serial())
	t.boundRecorder = rec
	t.boundGeneration = rec.Generation()
}
