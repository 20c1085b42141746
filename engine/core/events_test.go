package core

import "testing"

func TestEventBusDeliversTypedFields(t *testing.T) {
	bus := NewEventBus(false)
	var got EventContext
	ok := bus.Register(EVENT_CODE_LAYOUT_TRANSITION, "listener", func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		got = data
		return true
	})
	if !ok {
		t.Fatal("Register() = false")
	}
	handled := bus.Fire(EVENT_CODE_LAYOUT_TRANSITION, nil,
		Uint("image", 42),
		String("to", "color_attachment"),
		Bool("noop", false),
	)
	if !handled {
		t.Fatal("Fire() = false, want handled")
	}
	if v, ok := got.Uint("image"); !ok || v != 42 {
		t.Errorf("Uint(image) = %d, %v", v, ok)
	}
	if v, ok := got.String("to"); !ok || v != "color_attachment" {
		t.Errorf("String(to) = %q, %v", v, ok)
	}
	if _, ok := got.String("image"); ok {
		t.Error("String(image) should not match a uint field")
	}
	if _, ok := got.Int("missing"); ok {
		t.Error("Int(missing) should not be found")
	}
}

func TestEventBusDuplicateAndUnregister(t *testing.T) {
	bus := NewEventBus(false)
	calls := 0
	cb := func(SystemEventCode, interface{}, interface{}, EventContext) bool {
		calls++
		return false
	}
	if !bus.Register(EVENT_CODE_SUBMIT, 1, cb) {
		t.Fatal("first Register() failed")
	}
	if bus.Register(EVENT_CODE_SUBMIT, 1, cb) {
		t.Error("duplicate Register() should fail")
	}
	bus.Register(EVENT_CODE_SUBMIT, 2, cb)
	if bus.Fire(EVENT_CODE_SUBMIT, nil) {
		t.Error("Fire() reported handled")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if !bus.Unregister(EVENT_CODE_SUBMIT, 1) {
		t.Error("Unregister() = false")
	}
	bus.Fire(EVENT_CODE_SUBMIT, nil)
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if bus.Unregister(EVENT_CODE_SUBMIT, 99) {
		t.Error("Unregister() of unknown listener should fail")
	}
}

func TestNilEventBusFireIsSafe(t *testing.T) {
	var bus *EventBus
	if bus.Fire(EVENT_CODE_DRAW, nil) {
		t.Error("nil bus reported handled")
	}
}
