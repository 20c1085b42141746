package vulkan

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

// PushConstantBuffer mirrors the push constant range of the bound shader on
// the host. Inline uniforms and push constant members write into it and the
// whole range is pushed before a draw when it changed.
type PushConstantBuffer struct {
	shader *Shader
	data   []byte
	dirty  bool

	pushedRecorder   *CommandRecorder
	pushedGeneration uint64
}

func NewPushConstantBuffer() *PushConstantBuffer {
	return &PushConstantBuffer{}
}

// SetShader resizes the storage for s. Contents written for the previous
// shader are cleared.
func (p *PushConstantBuffer) SetShader(s *Shader) {
	if p.shader == s {
		return
	}
	p.shader = s
	p.data = nil
	if s != nil {
		p.data = make([]byte, s.Interface.PushConstants.End())
	}
	p.dirty = true
	p.pushedRecorder = nil
}

func (p *PushConstantBuffer) write(what string, offset, size uint32, data []byte) error {
	if uint32(len(data)) != size {
		return errors.Newf("shader `%s`: %s takes %d bytes, got %d", p.shader.Name, what, size, len(data))
	}
	copy(p.data[offset:offset+size], data)
	p.dirty = true
	return nil
}

// BindInlineUniform stores the contents of an inline uniform block.
func (p *PushConstantBuffer) BindInlineUniform(loc metadata.ShaderResourceLocation, data []byte) error {
	if p.shader == nil {
		return errors.New("inline uniform without a bound shader")
	}
	blk, ok := p.shader.Interface.InlineUniform(loc)
	if !ok {
		return errors.Newf("shader `%s` has no inline uniform at %s", p.shader.Name, loc)
	}
	return p.write("inline uniform `"+blk.Name+"`", blk.Offset, blk.Size, data)
}

// Set stores a push constant member by name.
func (p *PushConstantBuffer) Set(name string, data []byte) error {
	if p.shader == nil {
		return errors.New("push constant without a bound shader")
	}
	m, ok := p.shader.Interface.PushConstant(name)
	if !ok {
		return errors.Newf("shader `%s` has no push constant `%s`", p.shader.Name, name)
	}
	return p.write("push constant `"+name+"`", m.Offset, m.Size, data)
}

// Bytes returns the host copy of the whole range.
func (p *PushConstantBuffer) Bytes() []byte {
	return p.data
}

// Flush pushes the range when it changed or when rec holds a new command
// buffer. It reports whether a push was recorded.
func (p *PushConstantBuffer) Flush(rec *CommandRecorder) bool {
	if p.shader == nil {
		return false
	}
	r := p.shader.Interface.PushConstants
	if r.Size == 0 {
		return false
	}
	fresh := p.pushedRecorder != rec || p.pushedGeneration != rec.Generation()
	if !p.dirty && !fresh {
		return false
	}
	rec.PushConstants(p.shader.PipelineLayout(), r.Stages, r.Offset, p.data[r.Offset:r.End()])
	p.dirty = false
	p.pushedRecorder = rec
	p.pushedGeneration = rec.Generation()
	return true
}
