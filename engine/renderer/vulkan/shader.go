package vulkan

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

// Shader is a finalized shader: its binding table plus the device objects
// built from it.
type Shader struct {
	Name      string
	Identity  uint64
	Interface *ShaderInterface
	State     metadata.ShaderState

	ctx            *DeviceContext
	stages         []driver.ShaderStageDesc
	modules        []driver.ShaderModule
	layoutIDs      []uint32
	setLayouts     []driver.DescriptorSetLayout
	pipelineLayout driver.PipelineLayout
	pools          []*DescriptorPool
	lastUse        uint64
}

// NewShader reflects the stages and creates the shader modules, the
// descriptor set layouts, the pipeline layout and one rotating descriptor
// pool per set. A configuration error aborts the creation and nothing is
// leaked.
func NewShader(ctx *DeviceContext, config metadata.ShaderConfig) (*Shader, error) {
	si, err := NewShaderInterface(config.Name, config.Stages, ctx.Limits, ctx.RotationDepth())
	if err != nil {
		core.LogError("failed to finalize shader `%s`: %s", config.Name, err.Error())
		return nil, err
	}
	s := &Shader{
		Name:      config.Name,
		Identity:  ctx.NextIdentity(),
		Interface: si,
		State:     metadata.SHADER_STATE_UNINITIALIZED,
		ctx:       ctx,
	}
	if err := s.createObjects(config.Stages); err != nil {
		s.release()
		core.LogError("failed to create device objects of shader `%s`: %s", config.Name, err.Error())
		return nil, err
	}
	s.State = metadata.SHADER_STATE_INITIALIZED
	core.LogDebug("%s", si.String())
	return s, nil
}

func (s *Shader) createObjects(stages []metadata.StageReflection) error {
	dev := s.ctx.Device
	for _, st := range stages {
		m, err := dev.CreateShaderModule(driver.ShaderModuleDesc{Name: s.Name + "." + st.Stage.String(), Code: st.Code})
		if err != nil {
			return errors.Wrapf(err, "shader `%s`: %s module", s.Name, st.Stage)
		}
		s.modules = append(s.modules, m)
		s.stages = append(s.stages, driver.ShaderStageDesc{Stage: st.Stage, Module: m, Entry: st.EntryPoint()})
	}

	layout := s.Interface.Layout
	for set := range layout.Sets {
		id, handle, err := s.ctx.AcquireSetLayout(layout.DeviceBindings(uint32(set)))
		if err != nil {
			return errors.Wrapf(err, "shader `%s`: set %d", s.Name, set)
		}
		s.layoutIDs = append(s.layoutIDs, id)
		s.setLayouts = append(s.setLayouts, handle)
	}

	desc := driver.PipelineLayoutDesc{SetLayouts: s.setLayouts}
	if pc := s.Interface.PushConstants; pc.Size > 0 {
		desc.PushConstants = []driver.PushConstantRange{{Stages: pc.Stages, Offset: pc.Offset, Size: pc.Size}}
	}
	pl, err := dev.CreatePipelineLayout(desc)
	if err != nil {
		return errors.Wrapf(err, "shader `%s`: pipeline layout", s.Name)
	}
	s.pipelineLayout = pl

	for set, plan := range s.Interface.PoolPlan {
		s.pools = append(s.pools, NewDescriptorPool(s.ctx, s.Name, uint32(set), s.setLayouts[set], plan))
	}
	return nil
}

func (s *Shader) Stages() []driver.ShaderStageDesc {
	return s.stages
}

func (s *Shader) PipelineLayout() driver.PipelineLayout {
	return s.pipelineLayout
}

func (s *Shader) SetLayouts() []driver.DescriptorSetLayout {
	return s.setLayouts
}

func (s *Shader) Pool(set uint32) *DescriptorPool {
	if int(set) >= len(s.pools) {
		return nil
	}
	return s.pools[set]
}

// Location is a shortcut for Interface.Location.
func (s *Shader) Location(name string) metadata.ShaderResourceLocation {
	return s.Interface.Location(name)
}

// Touch records that work with the given serial references the shader.
func (s *Shader) Touch(serial uint64) {
	if serial > s.lastUse {
		s.lastUse = serial
	}
}

// Destroy releases the device objects once the last work using the shader
// completed. Pipelines built from it are released by the PipelineAssembler.
func (s *Shader) Destroy() {
	if s.State == metadata.SHADER_STATE_DESTROYED {
		return
	}
	s.State = metadata.SHADER_STATE_DESTROYED
	s.ctx.DeferRelease(s.lastUse, "shader "+s.Name, s.release)
}

func (s *Shader) release() {
	dev := s.ctx.Device
	for _, p := range s.pools {
		p.Destroy()
	}
	s.pools = nil
	if s.pipelineLayout != 0 {
		dev.DestroyPipelineLayout(s.pipelineLayout)
		s.pipelineLayout = 0
	}
	for _, id := range s.layoutIDs {
		s.ctx.ReleaseSetLayout(id)
	}
	s.layoutIDs = nil
	s.setLayouts = nil
	for _, m := range s.modules {
		dev.DestroyShaderModule(m)
	}
	s.modules = nil
	s.stages = nil
}
