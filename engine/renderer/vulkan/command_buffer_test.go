package vulkan

import (
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver/drivertest"
)

func TestSubmitSkipsEmptyWorkUnlessFinal(t *testing.T) {
	ctx, dev := newTestContext(t)
	rec := newTestRecorder(t, ctx, "test")

	if err := rec.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	serial := rec.Serial()
	if err := rec.Submit(false, false); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if len(dev.Submits) != 0 {
		t.Errorf("empty recorder submitted %d times", len(dev.Submits))
	}
	if rec.State() != RECORDER_STATE_IDLE || !ctx.Timeline.IsComplete(serial) {
		t.Errorf("state = %s, serial complete = %v", rec.State(), ctx.Timeline.IsComplete(serial))
	}

	_ = rec.Begin()
	if err := rec.Submit(false, true); err != nil {
		t.Fatalf("Submit(final) error = %v", err)
	}
	if len(dev.Submits) != 1 {
		t.Errorf("final submit of an empty recorder submitted %d times, want 1", len(dev.Submits))
	}

	_ = rec.Begin()
	rec.SetScissor(driver.Rect2D{})
	if err := rec.Submit(true, false); err != nil {
		t.Fatalf("Submit(rotate) error = %v", err)
	}
	if len(dev.Submits) != 2 {
		t.Errorf("%d submissions, want 2", len(dev.Submits))
	}
	if rec.State() != RECORDER_STATE_RECORDING {
		t.Errorf("state after rotating submit = %s", rec.State())
	}
}

func TestSubmitDrainsQueueUnlessPipelined(t *testing.T) {
	for _, pipelined := range []bool{false, true} {
		ctx, dev := newTestContext(t, func(c *core.RendererConfig) { c.PipelinedSubmission = pipelined })
		rec := newTestRecorder(t, ctx, "test")
		_ = rec.Begin()
		serial := rec.Serial()
		rec.SetScissor(driver.Rect2D{})
		if err := rec.Submit(false, false); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		wantIdle := 1
		if pipelined {
			wantIdle = 0
		}
		if dev.QueueIdleWaits != wantIdle {
			t.Errorf("pipelined=%v: QueueIdleWaits = %d, want %d", pipelined, dev.QueueIdleWaits, wantIdle)
		}
		if got := ctx.Timeline.IsComplete(serial); got == pipelined {
			t.Errorf("pipelined=%v: serial complete after submit = %v", pipelined, got)
		}
		_ = rec.Begin()
		if !ctx.Timeline.IsComplete(serial) {
			t.Errorf("pipelined=%v: serial still pending after the next Begin", pipelined)
		}
	}
}

func TestBeginIsIdempotent(t *testing.T) {
	ctx, _ := newTestContext(t)
	rec := newTestRecorder(t, ctx, "test")
	_ = rec.Begin()
	gen, serial := rec.Generation(), rec.Serial()
	_ = rec.Begin()
	if rec.Generation() != gen || rec.Serial() != serial {
		t.Errorf("second Begin() started a new scope")
	}
	_ = rec.Submit(true, true)
	if rec.Generation() != gen+1 || rec.Serial() <= serial {
		t.Errorf("Submit(rotate) generation = %d serial = %d", rec.Generation(), rec.Serial())
	}
}

func TestBeginWhilePendingSubmitFails(t *testing.T) {
	if core.AssertionsPanic() {
		t.Skip("assertions panic in this build")
	}
	ctx, _ := newTestContext(t)
	rec := newTestRecorder(t, ctx, "test")
	_ = rec.Begin()
	_ = rec.End()
	if err := rec.Begin(); !core.IsAssertionFailure(err) {
		t.Errorf("Begin() while pending submit error = %v, want an assertion failure", err)
	}
}

func TestCommandsOutsideRecordingAreDropped(t *testing.T) {
	if core.AssertionsPanic() {
		t.Skip("assertions panic in this build")
	}
	ctx, dev := newTestContext(t)
	rec := newTestRecorder(t, ctx, "test")
	rec.Draw(3, 1, 0, 0)
	if dev.Count(drivertest.OpDraw) != 0 || rec.HasPendingWork() {
		t.Error("draw recorded while idle")
	}
	if err := rec.BeginRenderPass(driver.RenderPassBeginInfo{}); !core.IsAssertionFailure(err) {
		t.Errorf("BeginRenderPass() while idle error = %v", err)
	}
}

func TestSemaphorePingPong(t *testing.T) {
	ctx, dev := newTestContext(t)
	rec := newTestRecorder(t, ctx, "test")
	sems := rec.Semaphores()

	for i := 0; i < 3; i++ {
		_ = rec.Begin()
		rec.SetScissor(driver.Rect2D{})
		if err := rec.Submit(false, false); err != nil {
			t.Fatalf("Submit(%d) error = %v", i, err)
		}
	}
	tests := []struct {
		wait   []driver.Semaphore
		signal driver.Semaphore
	}{
		{nil, sems[0]},
		{[]driver.Semaphore{sems[0]}, sems[1]},
		{[]driver.Semaphore{sems[1]}, sems[0]},
	}
	for i, tt := range tests {
		got := dev.Submits[i]
		if len(got.WaitSemaphores) != len(tt.wait) || (len(tt.wait) > 0 && got.WaitSemaphores[0] != tt.wait[0]) {
			t.Errorf("submit %d waits on %v, want %v", i, got.WaitSemaphores, tt.wait)
		}
		if got.SignalSemaphores[0] != tt.signal {
			t.Errorf("submit %d signals %v, want %v", i, got.SignalSemaphores, tt.signal)
		}
	}
}

func TestLinkedRecorderWaitsOnProducer(t *testing.T) {
	ctx, dev := newTestContext(t)
	producer := newTestRecorder(t, ctx, "upload")
	consumer := newTestRecorder(t, ctx, "graphics")
	consumer.Link(producer)

	submit := func(r *CommandRecorder) {
		t.Helper()
		_ = r.Begin()
		r.SetScissor(driver.Rect2D{})
		if err := r.Submit(false, false); err != nil {
			t.Fatalf("Submit(%s) error = %v", r.Name(), err)
		}
	}
	submit(producer)
	produced := producer.LastSignal()
	submit(consumer)
	if waits := dev.Submits[1].WaitSemaphores; len(waits) != 1 || waits[0] != produced {
		t.Errorf("consumer waits on %v, want %v", waits, produced)
	}
	if producer.LastSignal() != 0 {
		t.Error("producer signal not consumed")
	}
	// The consumed signal must not be waited on twice.
	submit(consumer)
	if waits := dev.Submits[2].WaitSemaphores; len(waits) != 0 {
		t.Errorf("second consumer submit waits on %v", waits)
	}
}

func TestExternalSemaphores(t *testing.T) {
	ctx, dev := newTestContext(t)
	rec := newTestRecorder(t, ctx, "test")
	_ = rec.Begin()
	rec.AddWaitSemaphore(900, driver.PipelineStageColorAttachmentOutput)
	rec.AddSignalSemaphore(901)
	_ = rec.Submit(false, true)
	got := dev.Submits[0]
	if len(got.WaitSemaphores) != 1 || got.WaitSemaphores[0] != 900 || got.WaitStages[0] != driver.PipelineStageColorAttachmentOutput {
		t.Errorf("waits = %v stages = %v", got.WaitSemaphores, got.WaitStages)
	}
	if len(got.SignalSemaphores) != 2 || got.SignalSemaphores[1] != 901 {
		t.Errorf("signals = %v", got.SignalSemaphores)
	}
	_ = rec.Begin()
	_ = rec.Submit(false, true)
	if len(dev.Submits[1].SignalSemaphores) != 1 {
		t.Errorf("external semaphores reused by the next submission")
	}
}

func TestFenceTimeoutRetries(t *testing.T) {
	ctx, dev := newTestContext(t, func(c *core.RendererConfig) { c.FenceRetries = 5 })
	events := listen(ctx, core.EVENT_CODE_FENCE_TIMEOUT)
	rec := newTestRecorder(t, ctx, "test")
	_ = rec.Begin()
	dev.HoldCompletion = true
	_ = rec.Submit(false, true)

	dev.HoldCompletion = false
	dev.FenceTimeouts = 2
	if err := rec.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if got := events.count(core.EVENT_CODE_FENCE_TIMEOUT); got != 2 {
		t.Errorf("%d timeout events, want 2", got)
	}
	if attempt, _ := events.last(core.EVENT_CODE_FENCE_TIMEOUT).Int("attempt"); attempt != 2 {
		t.Errorf("last attempt = %d, want 2", attempt)
	}
}

func TestFenceNeverSignaledIsDeviceHang(t *testing.T) {
	ctx, dev := newTestContext(t, func(c *core.RendererConfig) { c.FenceRetries = 3 })
	events := listen(ctx, core.EVENT_CODE_FENCE_TIMEOUT)
	rec := newTestRecorder(t, ctx, "test")
	_ = rec.Begin()
	dev.HoldCompletion = true
	_ = rec.Submit(false, true)

	err := rec.Begin()
	if !errors.Is(err, core.ErrDeviceHang) {
		t.Fatalf("Begin() error = %v, want device hang", err)
	}
	if got := events.count(core.EVENT_CODE_FENCE_TIMEOUT); got != 3 {
		t.Errorf("%d timeout events, want 3", got)
	}
	dev.HoldCompletion = false
	dev.Complete()
	if err := rec.Begin(); err != nil {
		t.Errorf("Begin() after completion error = %v", err)
	}
}

func TestSubmitFailureIsFrameSubmissionError(t *testing.T) {
	ctx, dev := newTestContext(t)
	rec := newTestRecorder(t, ctx, "test")
	_ = rec.Begin()
	dev.SubmitErr = driver.ErrDeviceLost
	err := rec.Submit(false, true)
	if !errors.Is(err, core.ErrFrameSubmission) || !errors.Is(err, driver.ErrDeviceLost) {
		t.Errorf("Submit() error = %v", err)
	}
}

func TestDebugLabels(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		ctx, dev := newTestContext(t, func(c *core.RendererConfig) { c.DebugLabels = enabled })
		events := listen(ctx, core.EVENT_CODE_DEBUG_LABEL)
		rec := newTestRecorder(t, ctx, "test")
		_ = rec.Begin()
		rec.PushLabel("shadows", [4]float32{1, 0, 0, 1})
		rec.PushLabel("cascade 0", [4]float32{1, 0, 0, 1})
		rec.PopLabel()
		// The open label is closed when the scope ends.
		_ = rec.Submit(false, true)

		wantLabels := 0
		if enabled {
			wantLabels = 2
		}
		if got := dev.Count(drivertest.OpBeginLabel); got != wantLabels {
			t.Errorf("enabled=%v: %d labels recorded, want %d", enabled, got, wantLabels)
		}
		if dev.OpenLabels() != 0 {
			t.Errorf("enabled=%v: %d labels left open", enabled, dev.OpenLabels())
		}
		if got := events.count(core.EVENT_CODE_DEBUG_LABEL); got != 4 {
			t.Errorf("enabled=%v: %d label events, want 4", enabled, got)
		}
	}
}
