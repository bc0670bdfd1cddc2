package gatt

import "context"

// A Request is what a handler receives for one event.
// Value holds the written value for EventGattsWrite, read from the radio
// when the handler is dispatched.
type Request struct {
	Event
	Peripheral *Peripheral
	Value      []byte
}

// A Task is asynchronous work produced by a SpawnTask callback.
// It runs on its own goroutine but never in parallel with handlers or
// other tasks of the same Peripheral, except while suspended in Await or
// Sleep.
type Task func(ctx context.Context) error

type callbackKind uint8

const (
	callbackAbsent callbackKind = iota
	callbackDirect
	callbackSpawn
	callbackBound
)

// A Callback describes how an event is handed to application code.
// The zero Callback is absent: events of its class go to the Unhandled
// fallback, if any.
type Callback struct {
	kind  callbackKind
	fn    func(Request)
	spawn func(Request) Task
}

// Direct returns a Callback that calls f on the dispatch loop.
// f must not block.
func Direct(f func(Request)) Callback {
	if f == nil {
		return Callback{}
	}
	return Callback{kind: callbackDirect, fn: f}
}

// SpawnTask returns a Callback that calls f on the dispatch loop and
// starts the Task it returns. The loop does not wait for the task.
func SpawnTask(f func(Request) Task) Callback {
	if f == nil {
		return Callback{}
	}
	return Callback{kind: callbackSpawn, spawn: f}
}

// BoundDirect returns a Callback that calls m with recv on the dispatch
// loop, typically a method expression such as (*UART).onWrite.
func BoundDirect[T any](recv T, m func(T, Request)) Callback {
	if m == nil {
		return Callback{}
	}
	return Callback{kind: callbackBound, fn: func(r Request) { m(recv, r) }}
}

// Absent reports whether c is the zero Callback.
func (c Callback) Absent() bool { return c.kind == callbackAbsent }

func (c Callback) String() string {
	switch c.kind {
	case callbackDirect:
		return "direct"
	case callbackSpawn:
		return "spawn"
	case callbackBound:
		return "bound"
	}
	return "absent"
}

// handlerSet is the set of callbacks installed by one call to Irq.
// It is never modified once published.
type handlerSet struct {
	connect    Callback
	disconnect Callback
	write      Callback
	unhandled  func(Event)
}

func (hs *handlerSet) lookup(c EventClass) Callback {
	if hs == nil {
		return Callback{}
	}
	switch c {
	case EventCentralConnect:
		return hs.connect
	case EventCentralDisconnect:
		return hs.disconnect
	case EventGattsWrite:
		return hs.write
	}
	return Callback{}
}

// A Handler sets one callback of a handler set; see Peripheral.Irq.
type Handler func(*handlerSet)

// Irq replaces every registered callback with the given ones.
// Callbacks not named by hh become absent.
func (p *Peripheral) Irq(hh ...Handler) {
	hs := &handlerSet{}
	for _, h := range hh {
		h(hs)
	}
	p.handlers.Store(hs)
}

// CentralConnected sets the callback for a central connecting.
func CentralConnected(c Callback) Handler {
	return func(hs *handlerSet) { hs.connect = c }
}

// CentralDisconnected sets the callback for a central disconnecting.
func CentralDisconnected(c Callback) Handler {
	return func(hs *handlerSet) { hs.disconnect = c }
}

// GattsWritten sets the callback for a central writing a local attribute.
func GattsWritten(c Callback) Handler {
	return func(hs *handlerSet) { hs.write = c }
}

// Unhandled sets a function to be called with events whose callback is absent.
func Unhandled(f func(Event)) Handler {
	return func(hs *handlerSet) { hs.unhandled = f }
}
