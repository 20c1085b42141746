package vulkan

import (
	"testing"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver/drivertest"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

func trackedImage(t *testing.T, ctx *DeviceContext, initial driver.ImageLayout) *ImageLayoutState {
	t.Helper()
	id := ctx.TrackImage("backbuffer", 5, driver.ImageAspectColor, initial)
	state, ok := ctx.ImageState(id)
	if !ok {
		t.Fatalf("ImageState(%d) not found", id)
	}
	return state
}

func TestTransitionRecordsOneBarrier(t *testing.T) {
	ctx, dev := newTestContext(t)
	events := listen(ctx, core.EVENT_CODE_LAYOUT_TRANSITION)
	rec := newTestRecorder(t, ctx, "test")
	_ = rec.Begin()
	img := trackedImage(t, ctx, driver.ImageLayoutUndefined)

	for i, want := range []bool{true, false} {
		changed, err := img.Transition(rec, metadata.ImageAccessColorAttachmentWrite)
		if err != nil || changed != want {
			t.Fatalf("Transition() #%d = %v, %v, want %v", i, changed, err, want)
		}
	}
	if got := dev.Count(drivertest.OpPipelineBarrier); got != 1 {
		t.Fatalf("%d barriers recorded, want 1", got)
	}
	cmd, _ := dev.Last(drivertest.OpPipelineBarrier)
	b := cmd.Barriers[0]
	if b.Image != 5 || b.OldLayout != driver.ImageLayoutUndefined || b.NewLayout != driver.ImageLayoutColorAttachmentOptimal {
		t.Errorf("barrier = %+v", b)
	}
	if cmd.DstStage != driver.PipelineStageColorAttachmentOutput {
		t.Errorf("barrier destination stage = %v", cmd.DstStage)
	}
	if img.Layout() != driver.ImageLayoutColorAttachmentOptimal {
		t.Errorf("Layout() = %v", img.Layout())
	}
	if ctx.Metrics.Current().Barriers != 1 || events.count(core.EVENT_CODE_LAYOUT_TRANSITION) != 1 {
		t.Errorf("barriers counted %d, events %d", ctx.Metrics.Current().Barriers, events.count(core.EVENT_CODE_LAYOUT_TRANSITION))
	}
	if to, _ := events.last(core.EVENT_CODE_LAYOUT_TRANSITION).String("to"); to != driver.ImageLayoutColorAttachmentOptimal.String() {
		t.Errorf("event to = %q", to)
	}
}

func TestTransitionSameLayoutDifferentAccess(t *testing.T) {
	ctx, dev := newTestContext(t)
	rec := newTestRecorder(t, ctx, "test")
	_ = rec.Begin()
	img := trackedImage(t, ctx, driver.ImageLayoutShaderReadOnlyOptimal)

	// Vertex and fragment sampling share one layout.
	changed, err := img.Transition(rec, metadata.ImageAccessVertexShaderRead)
	if err != nil || changed {
		t.Errorf("Transition() = %v, %v, want no barrier", changed, err)
	}
	if dev.Count(drivertest.OpPipelineBarrier) != 0 {
		t.Error("barrier recorded for an unchanged layout")
	}
}

func TestTransitionEndsRenderPass(t *testing.T) {
	ctx, dev := newTestContext(t)
	rec := newTestRecorder(t, ctx, "test")
	_ = rec.Begin()
	if err := rec.BeginRenderPass(driver.RenderPassBeginInfo{RenderPass: 1, Framebuffer: 2}); err != nil {
		t.Fatalf("BeginRenderPass() error = %v", err)
	}
	img := trackedImage(t, ctx, driver.ImageLayoutUndefined)
	if _, err := img.Transition(rec, metadata.ImageAccessShaderRead); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if rec.InRenderPass() || dev.Count(drivertest.OpEndRenderPass) != 1 {
		t.Error("barrier recorded inside a render pass")
	}
}

func TestEnsureHelpers(t *testing.T) {
	if core.AssertionsPanic() {
		t.Skip("assertions panic in this build")
	}
	tests := []struct {
		name      string
		initial   driver.ImageLayout
		ensure    func(*ImageLayoutState, *CommandRecorder) error
		want      driver.ImageLayout
		assertion bool
	}{
		{"writable from undefined", driver.ImageLayoutUndefined, (*ImageLayoutState).EnsureColorAttachmentWritable, driver.ImageLayoutColorAttachmentOptimal, false},
		{"writable from present", driver.ImageLayoutPresentSrc, (*ImageLayoutState).EnsureColorAttachmentWritable, driver.ImageLayoutColorAttachmentOptimal, false},
		{"writable from attachment", driver.ImageLayoutColorAttachmentOptimal, (*ImageLayoutState).EnsureColorAttachmentWritable, driver.ImageLayoutColorAttachmentOptimal, false},
		{"writable from shader read", driver.ImageLayoutShaderReadOnlyOptimal, (*ImageLayoutState).EnsureColorAttachmentWritable, driver.ImageLayoutShaderReadOnlyOptimal, true},
		{"presentable from attachment", driver.ImageLayoutColorAttachmentOptimal, (*ImageLayoutState).EnsurePresentable, driver.ImageLayoutPresentSrc, false},
		{"presentable from present", driver.ImageLayoutPresentSrc, (*ImageLayoutState).EnsurePresentable, driver.ImageLayoutPresentSrc, false},
		{"presentable from undefined", driver.ImageLayoutUndefined, (*ImageLayoutState).EnsurePresentable, driver.ImageLayoutUndefined, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, _ := newTestContext(t)
			rec := newTestRecorder(t, ctx, "test")
			_ = rec.Begin()
			img := trackedImage(t, ctx, tt.initial)
			err := tt.ensure(img, rec)
			if got := core.IsAssertionFailure(err); got != tt.assertion {
				t.Errorf("assertion failure = %v, want %v (%v)", got, tt.assertion, err)
			}
			if img.Layout() != tt.want {
				t.Errorf("Layout() = %v, want %v", img.Layout(), tt.want)
			}
		})
	}
}

func TestDiscardForgetsContents(t *testing.T) {
	ctx, _ := newTestContext(t)
	img := trackedImage(t, ctx, driver.ImageLayoutPresentSrc)
	img.Discard()
	if img.Layout() != driver.ImageLayoutUndefined || img.Access() != metadata.ImageAccessUndefined {
		t.Errorf("after Discard() layout = %v", img.Layout())
	}
}
