package vulkan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

// ResolvedAttribute maps one location of a shader attribute to a buffer.
// Location is metadata.UnusedLocation when a later buffer took it over.
type ResolvedAttribute struct {
	Name     string
	Location uint32
	Binding  uint32
	Format   driver.Format
	Offset   uint32
	Size     uint32
	// Index of the source in the bound buffers, -1 for the zero buffer.
	BufferIndex int
}

// VertexLayout is the vertex input description of a shader for a set of
// buffer formats, and the buffer binds it needs at draw time.
type VertexLayout struct {
	Bindings   []driver.VertexBindingDesc
	Attributes []driver.VertexAttributeDesc
	// Every record produced, including the ones that lost their location.
	Resolved []ResolvedAttribute
	// For each binding, the bound buffer index feeding it or -1 for the zero buffer.
	BufferSlots []int
	Signature   string
}

// Bind records the vertex buffer binds of the layout.
func (l *VertexLayout) Bind(rec *CommandRecorder, buffers []metadata.VertexBuffer, zero driver.Buffer) {
	if len(l.BufferSlots) == 0 {
		return
	}
	handles := make([]driver.Buffer, len(l.BufferSlots))
	offsets := make([]uint64, len(l.BufferSlots))
	for i, slot := range l.BufferSlots {
		if slot < 0 {
			handles[i] = zero
			continue
		}
		handles[i] = buffers[slot].Buffer
		offsets[i] = buffers[slot].Offset
	}
	rec.BindVertexBuffers(0, handles, offsets)
}

// Lookup returns the record currently mapped to location.
func (l *VertexLayout) Lookup(location uint32) (ResolvedAttribute, bool) {
	for _, r := range l.Resolved {
		if r.Location == location {
			return r, true
		}
	}
	return ResolvedAttribute{}, false
}

// VertexBindingCache memoizes vertex layouts per shader identity and buffer
// formats.
type VertexBindingCache struct {
	layouts map[uint64]map[string]*VertexLayout
	hits    uint64
	misses  uint64
}

func NewVertexBindingCache() *VertexBindingCache {
	return &VertexBindingCache{layouts: make(map[uint64]map[string]*VertexLayout)}
}

// Resolve returns the layout of shader s for buffers with the given formats.
func (c *VertexBindingCache) Resolve(s *Shader, formats []metadata.VertexFormat) (*VertexLayout, error) {
	key := metadata.VertexFormatsSignature(formats)
	byShader, ok := c.layouts[s.Identity]
	if !ok {
		byShader = make(map[string]*VertexLayout)
		c.layouts[s.Identity] = byShader
	}
	if l, ok := byShader[key]; ok {
		c.hits++
		return l, nil
	}
	l, err := ResolveVertexLayout(s.Interface, formats)
	if err != nil {
		return nil, err
	}
	c.misses++
	byShader[key] = l
	return l, nil
}

// Forget drops the layouts of a shader.
func (c *VertexBindingCache) Forget(identity uint64) {
	delete(c.layouts, identity)
}

func (c *VertexBindingCache) Stats() (hits, misses uint64) {
	return c.hits, c.misses
}

// ResolveVertexLayout matches the attributes of si with the buffer formats.
// Buffers are processed in order and a location claimed twice goes to the
// last buffer. Matrices are split in one attribute per row. Attributes no
// buffer supplies read zeros from a shared buffer with stride 0.
func ResolveVertexLayout(si *ShaderInterface, formats []metadata.VertexFormat) (*VertexLayout, error) {
	var records []ResolvedAttribute
	claims := make(map[uint32]int)

	for bi, f := range formats {
		for _, a := range f.Attributes {
			in, ok := si.Attribute(a.Name)
			if !ok {
				continue
			}
			if err := a.Type.Validate(); err != nil {
				core.LogError("shader `%s`: buffer %d attribute `%s`: %s", si.Name, bi, a.Name, err.Error())
				return nil, core.NewUnsupportedAttributeError(si.Name, a.Name, a.Type.String())
			}
			if a.Type.Locations() != in.Type.Locations() {
				return nil, core.NewConfigurationError(si.Name, "vertex attribute `%s` spans %d locations in buffer %d, shader expects %d", a.Name, a.Type.Locations(), bi, in.Type.Locations())
			}
			format, _ := a.Type.RowFormat()
			rowSize := a.Type.Size() / a.Type.Locations()
			for row := uint32(0); row < a.Type.Locations(); row++ {
				loc := in.Location + row
				if prev, taken := claims[loc]; taken {
					core.LogDebug("shader `%s`: location %d of `%s` taken over by buffer %d", si.Name, loc, records[prev].Name, bi)
					records[prev].Location = metadata.UnusedLocation
				}
				claims[loc] = len(records)
				records = append(records, ResolvedAttribute{
					Name:        a.Name,
					Location:    loc,
					Format:      format,
					Offset:      a.Offset + row*rowSize,
					Size:        rowSize,
					BufferIndex: bi,
				})
			}
		}
	}

	l := &VertexLayout{}
	slotOf := make(map[int]uint32)
	for bi, f := range formats {
		contributes := false
		for _, r := range records {
			if r.BufferIndex == bi && r.Location != metadata.UnusedLocation {
				contributes = true
				break
			}
		}
		if !contributes {
			continue
		}
		slot := uint32(len(l.Bindings))
		slotOf[bi] = slot
		rate := driver.VertexInputRateVertex
		if f.PerInstance {
			rate = driver.VertexInputRateInstance
		}
		l.Bindings = append(l.Bindings, driver.VertexBindingDesc{Binding: slot, Stride: formatStride(f), InputRate: rate})
		l.BufferSlots = append(l.BufferSlots, bi)
	}
	for i := range records {
		if slot, ok := slotOf[records[i].BufferIndex]; ok {
			records[i].Binding = slot
		}
	}

	// Locations required by the shader that nothing supplies.
	zeroSlot := -1
	for _, in := range si.Attributes {
		format, _ := in.Type.RowFormat()
		rowSize := in.Type.RowSize()
		for row := uint32(0); row < in.Type.Locations(); row++ {
			loc := in.Location + row
			if _, ok := claims[loc]; ok {
				continue
			}
			if zeroSlot < 0 {
				zeroSlot = len(l.Bindings)
				l.Bindings = append(l.Bindings, driver.VertexBindingDesc{
					Binding:   uint32(zeroSlot),
					Stride:    0,
					InputRate: driver.VertexInputRateInstance,
				})
				l.BufferSlots = append(l.BufferSlots, -1)
			}
			claims[loc] = len(records)
			records = append(records, ResolvedAttribute{
				Name:        in.Name,
				Location:    loc,
				Binding:     uint32(zeroSlot),
				Format:      format,
				Size:        rowSize,
				BufferIndex: -1,
			})
		}
	}

	l.Resolved = records
	for _, r := range records {
		if r.Location == metadata.UnusedLocation {
			continue
		}
		l.Attributes = append(l.Attributes, driver.VertexAttributeDesc{
			Location: r.Location,
			Binding:  r.Binding,
			Format:   r.Format,
			Offset:   r.Offset,
		})
	}
	sort.Slice(l.Attributes, func(i, j int) bool { return l.Attributes[i].Location < l.Attributes[j].Location })
	l.Signature = layoutSignature(l)
	return l, nil
}

// formatStride returns the declared stride or the packed size of the attributes.
func formatStride(f metadata.VertexFormat) uint32 {
	if f.Stride > 0 {
		return f.Stride
	}
	end := uint32(0)
	for _, a := range f.Attributes {
		if e := a.Offset + a.Type.Size(); e > end {
			end = e
		}
	}
	return end
}

func layoutSignature(l *VertexLayout) string {
	var sb strings.Builder
	for _, b := range l.Bindings {
		fmt.Fprintf(&sb, "b%d:%d:%d;", b.Binding, b.Stride, b.InputRate)
	}
	for _, a := range l.Attributes {
		fmt.Fprintf(&sb, "a%d:%d:%d:%d;", a.Location, a.Binding, a.Format, a.Offset)
	}
	return sb.String()
}
