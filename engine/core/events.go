package core

import "sync"

// Debug channel event codes. Applications should use codes beyond MAX_EVENT_CODE.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Framebuffer resized.
	/* Fields: width, height */
	EVENT_CODE_RESIZED SystemEventCode = 0x02

	// An image changed layout.
	/* Fields: image, from, to, src_stage, dst_stage */
	EVENT_CODE_LAYOUT_TRANSITION SystemEventCode = 0x03

	// Pending bindings were written into fresh descriptor sets.
	/* Fields: shader, set, writes, serial */
	EVENT_CODE_DESCRIPTOR_FLUSH SystemEventCode = 0x04

	// A pipeline was created for a new key.
	/* Fields: shader, topology, pipeline */
	EVENT_CODE_PIPELINE_BUILD SystemEventCode = 0x05

	// Pipelines were released to recover device memory.
	/* Fields: evicted */
	EVENT_CODE_PIPELINE_EVICT SystemEventCode = 0x06

	// A command buffer was handed to the queue.
	/* Fields: recorder, serial, wait_semaphores, signal_semaphore, final */
	EVENT_CODE_SUBMIT SystemEventCode = 0x07

	// A fence wait timed out and will be retried.
	/* Fields: recorder, attempt */
	EVENT_CODE_FENCE_TIMEOUT SystemEventCode = 0x08

	// Debug label pushed (depth > 0) or popped.
	/* Fields: label, depth */
	EVENT_CODE_DEBUG_LABEL SystemEventCode = 0x09

	// A shader asset was rebuilt from disk.
	/* Fields: shader */
	EVENT_CODE_SHADER_RELOADED SystemEventCode = 0x0A

	// A draw was recorded.
	/* Fields: shader, vertex_count, instance_count, indexed */
	EVENT_CODE_DRAW SystemEventCode = 0x0B

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// This should be more than enough codes...
const MAX_MESSAGE_CODES = 1024

// Field is one typed key/value pair of an event.
type Field struct {
	Key   string
	Value interface{}
}

func String(key, v string) Field { return Field{Key: key, Value: v} }
func Uint(key string, v uint64) Field { return Field{Key: key, Value: v} }
func Int(key string, v int64) Field { return Field{Key: key, Value: v} }
func Bool(key string, v bool) Field { return Field{Key: key, Value: v} }

// EventContext is the payload handed to listeners.
type EventContext struct {
	Fields []Field
}

func (c EventContext) lookup(key string) (interface{}, bool) {
	for _, f := range c.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

func (c EventContext) String(key string) (string, bool) {
	v, ok := c.lookup(key)
	s, isString := v.(string)
	return s, ok && isString
}

func (c EventContext) Uint(key string) (uint64, bool) {
	v, ok := c.lookup(key)
	u, isUint := v.(uint64)
	return u, ok && isUint
}

func (c EventContext) Int(key string) (int64, bool) {
	v, ok := c.lookup(key)
	i, isInt := v.(int64)
	return i, ok && isInt
}

func (c EventContext) Bool(key string) (bool, bool) {
	v, ok := c.lookup(key)
	b, isBool := v.(bool)
	return b, ok && isBool
}

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listenerInst interface{}, data EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// EventBus is the structured debug channel of one device context. When trace
// is enabled every fired event is also written to the log as key/value pairs.
type EventBus struct {
	mu         sync.Mutex
	registered [MAX_MESSAGE_CODES][]*registeredEvent
	trace      bool
}

func NewEventBus(trace bool) *EventBus {
	return &EventBus{trace: trace}
}

/**
 * Register to listen for when events are sent with the provided code. Events with duplicate
 * listeners will not be registered again and will cause this to return false.
 * @param code The event code to listen for.
 * @param listener A listener instance. Can be nil.
 * @param onEvent The callback to be invoked when the event code is fired.
 * @returns true if the event is successfully registered; otherwise false.
 */
func (b *EventBus) Register(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	if code < 0 || int(code) >= MAX_MESSAGE_CODES || onEvent == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.registered[code] {
		if e.listener == listener {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	b.registered[code] = append(b.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

/**
 * Unregister from listening for when events are sent with the provided code. If no matching
 * registration is found, this function returns false.
 */
func (b *EventBus) Unregister(code SystemEventCode, listener interface{}) bool {
	if code < 0 || int(code) >= MAX_MESSAGE_CODES {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	events := b.registered[code]
	for i, e := range events {
		if e.listener == listener {
			b.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * true, the event is considered handled and is not passed on to any more listeners.
 * @returns true if handled, otherwise false.
 */
func (b *EventBus) Fire(code SystemEventCode, sender interface{}, fields ...Field) bool {
	if b == nil || code < 0 || int(code) >= MAX_MESSAGE_CODES {
		return false
	}
	if b.trace {
		keyvals := make([]interface{}, 0, 2+2*len(fields))
		keyvals = append(keyvals, "event", code)
		for _, f := range fields {
			keyvals = append(keyvals, f.Key, f.Value)
		}
		getLogger().Debug("trace", keyvals...)
	}
	b.mu.Lock()
	events := append([]*registeredEvent(nil), b.registered[code]...)
	b.mu.Unlock()

	context := EventContext{Fields: fields}
	for _, e := range events {
		if e.callback(code, sender, e.listener, context) {
			// Message has been handled, do not send to other listeners.
			return true
		}
	}
	return false
}

// Shutdown drops every registration.
func (b *EventBus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.registered {
		b.registered[i] = nil
	}
}
