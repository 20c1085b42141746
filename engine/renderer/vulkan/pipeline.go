package vulkan

import (
	"container/list"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
)

// RenderPassInfo identifies the render pass a pipeline must be compatible
// with. Passes with the same signature are compatible.
type RenderPassInfo struct {
	Handle           driver.RenderPass
	Signature        string
	ColorAttachments uint32
	Samples          uint32
}

// PipelineRequest is everything a draw contributes to its pipeline.
type PipelineRequest struct {
	Shader   *Shader
	Vertex   *VertexLayout
	Topology driver.PrimitiveTopology
	State    driver.FixedFunctionState
	Pass     RenderPassInfo
}

// PipelineKey identifies a pipeline in the cache. State holds the fixed up
// values actually built.
type PipelineKey struct {
	Shader     uint64
	Topology   driver.PrimitiveTopology
	Vertex     string
	State      driver.FixedFunctionState
	RenderPass string
}

type pipelineEntry struct {
	key     PipelineKey
	handle  driver.Pipeline
	name    string
	lastUse uint64
	elem    *list.Element
}

// PipelineAssembler builds pipelines on demand and caches them.
type PipelineAssembler struct {
	ctx     *DeviceContext
	entries map[PipelineKey]*pipelineEntry
	// Most recently used first.
	lru *list.List
	max int
}

func NewPipelineAssembler(ctx *DeviceContext) *PipelineAssembler {
	return &PipelineAssembler{
		ctx:     ctx,
		entries: make(map[PipelineKey]*pipelineEntry),
		lru:     list.New(),
		max:     ctx.Config.MaxPipelines,
	}
}

// FixUp returns the state a pipeline for topology is built with. Primitive
// restart only exists for strips and fans.
func FixUp(topology driver.PrimitiveTopology, state driver.FixedFunctionState) driver.FixedFunctionState {
	if topology.IsList() && state.PrimitiveRestart {
		state.PrimitiveRestart = false
	}
	return state
}

func (a *PipelineAssembler) Key(req PipelineRequest) PipelineKey {
	return PipelineKey{
		Shader:     req.Shader.Identity,
		Topology:   req.Topology,
		Vertex:     req.Vertex.Signature,
		State:      FixUp(req.Topology, req.State),
		RenderPass: req.Pass.Signature,
	}
}

func (a *PipelineAssembler) Len() int {
	return len(a.entries)
}

// GetOrBuild returns the pipeline matching req, building it on a miss. The
// pipeline is marked as used by serial.
func (a *PipelineAssembler) GetOrBuild(req PipelineRequest, serial uint64) (driver.Pipeline, error) {
	var out driver.Pipeline
	err := a.ctx.locks.SafeCall(PipelineManagement, func() error {
		key := a.Key(req)
		if e, ok := a.entries[key]; ok {
			a.touch(e, serial)
			a.ctx.Metrics.Current().PipelineHits++
			out = e.handle
			return nil
		}
		p, err := a.build(req, key)
		if err != nil {
			return err
		}
		e := &pipelineEntry{key: key, handle: p, name: req.Shader.Name, lastUse: serial}
		e.elem = a.lru.PushFront(e)
		a.entries[key] = e
		a.ctx.Metrics.Current().PipelineBuilds++
		a.ctx.Events.Fire(core.EVENT_CODE_PIPELINE_BUILD, a,
			core.String("shader", req.Shader.Name),
			core.String("topology", req.Topology.String()),
			core.Bool("primitive_restart", key.State.PrimitiveRestart),
			core.String("render_pass", key.RenderPass),
			core.Int("cached", int64(len(a.entries))),
		)
		if a.max > 0 && len(a.entries) > a.max {
			a.evict(a.lru.Back().Value.(*pipelineEntry), "capacity")
		}
		out = p
		return nil
	})
	return out, err
}

func (a *PipelineAssembler) touch(e *pipelineEntry, serial uint64) {
	if serial > e.lastUse {
		e.lastUse = serial
	}
	a.lru.MoveToFront(e.elem)
}

func (a *PipelineAssembler) build(req PipelineRequest, key PipelineKey) (driver.Pipeline, error) {
	desc := driver.GraphicsPipelineDesc{
		Name:             fmt.Sprintf("%s/%s", req.Shader.Name, req.Topology),
		Stages:           req.Shader.Stages(),
		Layout:           req.Shader.PipelineLayout(),
		RenderPass:       req.Pass.Handle,
		Topology:         req.Topology,
		Bindings:         req.Vertex.Bindings,
		Attributes:       req.Vertex.Attributes,
		State:            key.State,
		ColorAttachments: req.Pass.ColorAttachments,
		Samples:          req.Pass.Samples,
	}
	if desc.Samples == 0 {
		desc.Samples = 1
	}
	p, err := a.ctx.Device.CreateGraphicsPipeline(desc)
	if err == nil {
		return p, nil
	}
	if !driver.IsOutOfMemory(err) {
		core.LogError("shader `%s`: pipeline creation failed: %s", req.Shader.Name, err.Error())
		return 0, errors.Wrapf(err, "shader `%s`: pipeline creation failed", req.Shader.Name)
	}

	evicted := a.evictCompleted()
	core.LogWarn("shader `%s`: out of memory building a pipeline, evicted %d idle pipelines and retrying", req.Shader.Name, evicted)
	p, err = a.ctx.Device.CreateGraphicsPipeline(desc)
	if err != nil {
		core.LogError("shader `%s`: pipeline creation failed after eviction: %s", req.Shader.Name, err.Error())
		return 0, core.NewResourceExhaustedError(err, "shader `%s`: pipeline", req.Shader.Name)
	}
	return p, nil
}

// evictCompleted drops every pipeline no pending work uses.
func (a *PipelineAssembler) evictCompleted() int {
	n := 0
	for elem := a.lru.Back(); elem != nil; {
		prev := elem.Prev()
		e := elem.Value.(*pipelineEntry)
		if a.ctx.Timeline.IsComplete(e.lastUse) {
			a.evict(e, "memory")
			n++
		}
		elem = prev
	}
	return n
}

func (a *PipelineAssembler) evict(e *pipelineEntry, reason string) {
	a.lru.Remove(e.elem)
	delete(a.entries, e.key)
	a.ctx.Events.Fire(core.EVENT_CODE_PIPELINE_EVICT, a,
		core.String("shader", e.name),
		core.String("reason", reason),
		core.Uint("last_use", e.lastUse),
	)
	handle := e.handle
	a.ctx.DeferRelease(e.lastUse, "pipeline "+e.name, func() {
		a.ctx.Device.DestroyPipeline(handle)
	})
}

// ReleaseShader drops the pipelines built from a shader. They are destroyed
// once the work using them completed.
func (a *PipelineAssembler) ReleaseShader(identity uint64) int {
	n := 0
	_ = a.ctx.locks.SafeCall(PipelineManagement, func() error {
		for _, e := range a.entries {
			if e.key.Shader == identity {
				a.evict(e, "shader released")
				n++
			}
		}
		return nil
	})
	return n
}

// Destroy releases every cached pipeline.
func (a *PipelineAssembler) Destroy() {
	_ = a.ctx.locks.SafeCall(PipelineManagement, func() error {
		for _, e := range a.entries {
			a.evict(e, "shutdown")
		}
		return nil
	})
}
