package gatt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCallbackKinds(t *testing.T) {
	type rcv struct{ n int }
	cases := []struct {
		c    Callback
		want string
	}{
		{Callback{}, "absent"},
		{Direct(nil), "absent"},
		{SpawnTask(nil), "absent"},
		{BoundDirect[*rcv](&rcv{}, nil), "absent"},
		{Direct(func(Request) {}), "direct"},
		{SpawnTask(func(Request) Task { return nil }), "spawn"},
		{BoundDirect(&rcv{}, func(*rcv, Request) {}), "bound"},
	}
	for _, tt := range cases {
		if got := tt.c.String(); got != tt.want {
			t.Errorf("Callback.String(): got %q want %q", got, tt.want)
		}
	}
}

func TestDispatchDirect(t *testing.T) {
	m := &mockRadio{}
	expectBuild(m)
	m.On("ReadValue", testAttr).Return([]byte{1, 2, 3}, nil)
	p, _ := newTestPeripheral(t, m)

	reqs := make(chan Request, 4)
	p.Irq(
		CentralConnected(Direct(func(r Request) { reqs <- r })),
		GattsWritten(Direct(func(r Request) { reqs <- r })),
	)
	serve(t, p)

	m.callback(Event{Class: EventCentralConnect, Conn: 4, PeerAddrType: 1, PeerAddr: [6]byte{1, 2, 3, 4, 5, 6}})
	r := recv(t, reqs)
	assert.Equal(t, EventCentralConnect, r.Class)
	assert.Equal(t, ConnHandle(4), r.Conn)
	assert.Equal(t, [6]byte{1, 2, 3, 4, 5, 6}, r.PeerAddr)
	assert.Same(t, p, r.Peripheral)

	m.callback(written(4, testAttr))
	r = recv(t, reqs)
	assert.Equal(t, EventGattsWrite, r.Class)
	assert.Equal(t, testAttr, r.Attr)
	assert.Equal(t, []byte{1, 2, 3}, r.Value)
}

type counter struct {
	writes chan []byte
}

func (c *counter) onWrite(r Request) { c.writes <- r.Value }

func TestDispatchBound(t *testing.T) {
	m := &mockRadio{}
	expectBuild(m)
	m.On("ReadValue", testAttr).Return([]byte("hi"), nil)
	p, _ := newTestPeripheral(t, m)

	c := &counter{writes: make(chan []byte, 1)}
	p.Irq(GattsWritten(BoundDirect(c, (*counter).onWrite)))
	serve(t, p)

	m.callback(written(0, testAttr))
	assert.Equal(t, []byte("hi"), recv(t, c.writes))
}

// The written value is read when the handler is dispatched, not when the
// event is raised.
func TestDispatchReadsValueLate(t *testing.T) {
	m := &mockRadio{}
	expectBuild(m)
	m.On("ReadValue", testAttr).Return([]byte("new"), nil)
	p, _ := newTestPeripheral(t, m)

	values := make(chan []byte, 1)
	p.Irq(GattsWritten(Direct(func(r Request) { values <- r.Value })))

	p.irq(written(0, testAttr))
	m.AssertNotCalled(t, "ReadValue", testAttr)

	serve(t, p)
	assert.Equal(t, []byte("new"), recv(t, values))
	m.AssertCalled(t, "ReadValue", testAttr)
}

func TestDispatchReplacedByAbsent(t *testing.T) {
	m := &mockRadio{}
	expectBuild(m)
	m.On("ReadValue", testAttr).Return([]byte{0}, nil)
	p, _ := newTestPeripheral(t, m)

	old := make(chan Request, 4)
	p.Irq(GattsWritten(Direct(func(r Request) { old <- r })))
	serve(t, p)

	m.callback(written(0, testAttr))
	recv(t, old)

	unhandled := make(chan Event, 4)
	p.Irq(Unhandled(func(ev Event) { unhandled <- ev }))
	m.callback(written(0, testAttr))
	ev := recv(t, unhandled)
	assert.Equal(t, EventGattsWrite, ev.Class)
	assert.Equal(t, testAttr, ev.Attr)

	m.callback(connect(1))
	assert.Equal(t, EventCentralConnect, recv(t, unhandled).Class)
	assert.Empty(t, old)
}

func TestDispatchDropsWithoutFallback(t *testing.T) {
	m := &mockRadio{}
	expectBuild(m)
	p, hook := newTestPeripheral(t, m)
	p.Irq()

	done := make(chan struct{})
	p.Irq(CentralDisconnected(Direct(func(Request) { close(done) })))
	p.Irq(CentralConnected(Callback{}))
	serve(t, p)

	m.callback(connect(1))
	m.callback(disconnect(1))
	assert.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Message == "event dropped, no handler" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	select {
	case <-done:
		t.Error("disconnect handler was replaced and must not run")
	default:
	}
}

func TestDispatchSurvivesPanic(t *testing.T) {
	m := &mockRadio{}
	expectBuild(m)
	p, hook := newTestPeripheral(t, m)

	calls := make(chan ConnHandle, 2)
	p.Irq(CentralConnected(Direct(func(r Request) {
		calls <- r.Conn
		if r.Conn == 1 {
			panic("boom")
		}
	})))
	serve(t, p)

	m.callback(connect(1))
	m.callback(connect(2))
	assert.Equal(t, ConnHandle(1), recv(t, calls))
	assert.Equal(t, ConnHandle(2), recv(t, calls))

	var found bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "run time panic: boom" {
			found = true
		}
	}
	assert.True(t, found, "panic is logged")
}

func TestDispatchOrder(t *testing.T) {
	m := &mockRadio{}
	expectBuild(m)
	p, _ := newTestPeripheral(t, m, QueueDepth(32))

	got := make(chan ConnHandle, 20)
	f := Direct(func(r Request) { got <- r.Conn })
	p.Irq(CentralConnected(f), CentralDisconnected(f))

	for h := ConnHandle(0); h < 10; h++ {
		p.irq(connect(h))
		p.irq(disconnect(h))
	}
	serve(t, p)
	for h := ConnHandle(0); h < 10; h++ {
		assert.Equal(t, h, recv(t, got))
		assert.Equal(t, h, recv(t, got))
	}
}

func TestQueueOverflow(t *testing.T) {
	m := &mockRadio{}
	expectBuild(m)
	p, hook := newTestPeripheral(t, m, QueueDepth(2))

	handled := make(chan ConnHandle, 8)
	p.Irq(CentralConnected(Direct(func(r Request) { handled <- r.Conn })))
	for h := ConnHandle(0); h < 5; h++ {
		p.irq(connect(h))
	}
	// The registry is updated even for dropped events.
	assert.Equal(t, 5, p.NumConnections())
	assert.Equal(t, uint64(3), p.DroppedEvents())

	serve(t, p)
	assert.Equal(t, ConnHandle(0), recv(t, handled))
	assert.Equal(t, ConnHandle(1), recv(t, handled))
	assert.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Level == logrus.WarnLevel && e.Data["dropped"] == uint64(3) {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestSpawnTask(t *testing.T) {
	m := &mockRadio{}
	expectBuild(m)
	p, _ := newTestPeripheral(t, m)

	trace := make(chan string, 8)
	p.Irq(
		CentralConnected(SpawnTask(func(r Request) Task {
			trace <- "spawn"
			return func(ctx context.Context) error {
				trace <- "task start"
				if err := Sleep(ctx, 200*time.Millisecond); err != nil {
					return err
				}
				trace <- "task end"
				return nil
			}
		})),
		CentralDisconnected(Direct(func(Request) { trace <- "direct" })),
	)
	serve(t, p)

	m.callback(connect(1))
	assert.Equal(t, "spawn", recv(t, trace))
	assert.Equal(t, "task start", recv(t, trace))

	// The task is suspended in Sleep, so the loop can run handlers.
	m.callback(disconnect(1))
	assert.Equal(t, "direct", recv(t, trace))
	assert.Equal(t, "task end", recv(t, trace))
}

func TestSpawnTaskError(t *testing.T) {
	m := &mockRadio{}
	expectBuild(m)
	p, hook := newTestPeripheral(t, m)

	p.Irq(CentralConnected(SpawnTask(func(r Request) Task {
		return func(context.Context) error { return errors.New("task broke") }
	})))
	serve(t, p)

	m.callback(connect(1))
	assert.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Message == "task failed" && e.Data[logrus.ErrorKey].(error).Error() == "task broke" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestAwaitOutsideTask(t *testing.T) {
	called := false
	err := Await(context.Background(), func() error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}

func TestWriteReadFailureDropsEvent(t *testing.T) {
	m := &mockRadio{}
	expectBuild(m)
	m.On("ReadValue", mock.Anything).Return(nil, errors.New("gone"))
	p, hook := newTestPeripheral(t, m)

	p.Irq(GattsWritten(Direct(func(Request) { t.Error("handler must not run") })))
	serve(t, p)
	m.callback(written(0, 9))
	assert.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Message == "cannot read written value" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}
