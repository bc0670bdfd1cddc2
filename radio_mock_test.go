package gatt

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRadio struct {
	mock.Mock
	callback func(Event)
}

func (m *mockRadio) Activate() error {
	return m.Called().Error(0)
}

func (m *mockRadio) RegisterEventCallback(f func(Event)) {
	m.callback = f
}

func (m *mockRadio) RegisterServices(svcs []*Service) (HandleTable, error) {
	args := m.Called(svcs)
	return args.Get(0).(HandleTable), args.Error(1)
}

func (m *mockRadio) Advertise(interval time.Duration, payload []byte) error {
	return m.Called(interval, payload).Error(0)
}

func (m *mockRadio) StopAdvertising() error {
	return m.Called().Error(0)
}

func (m *mockRadio) ReadValue(a Attr) ([]byte, error) {
	args := m.Called(a)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *mockRadio) WriteValue(a Attr, b []byte) error {
	return m.Called(a, b).Error(0)
}

func (m *mockRadio) Notify(h ConnHandle, a Attr, b []byte) error {
	return m.Called(h, a, b).Error(0)
}

func (m *mockRadio) Disconnect(h ConnHandle) error {
	return m.Called(h).Error(0)
}

func (m *mockRadio) SetWriteBuffer(a Attr, n int, append bool) error {
	return m.Called(a, n, append).Error(0)
}

// broadcastRadio is a mockRadio that can only notify all centrals at once.
type broadcastRadio struct {
	mockRadio
}

func (m *broadcastRadio) Broadcast(a Attr, b []byte) error {
	return m.Called(a, b).Error(0)
}

const testAttr Attr = 3

func expectBuild(m *mockRadio) {
	m.On("Activate").Return(nil)
	m.On("RegisterServices", mock.Anything).Return(NewHandleTable([][]CharHandles{{{Value: testAttr}}}), nil)
	m.On("Advertise", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("StopAdvertising").Return(nil).Maybe()
}

// newTestPeripheral returns a built peripheral on m, logging to hook.
func newTestPeripheral(t *testing.T, m Radio, opts ...Option) (*Peripheral, *logtest.Hook) {
	t.Helper()
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	p := NewPeripheral(m, append([]Option{Logger(log)}, opts...)...)
	_, err := p.Build(NewService(UUID16(0x181A)))
	require.NoError(t, err)
	return p, hook
}

// serve runs p.Serve until the test ends.
func serve(t *testing.T, p *Peripheral) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func recv[T any](t *testing.T, c <-chan T) T {
	t.Helper()
	select {
	case v := <-c:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
	var zero T
	return zero
}

func connect(h ConnHandle) Event    { return Event{Class: EventCentralConnect, Conn: h} }
func disconnect(h ConnHandle) Event { return Event{Class: EventCentralDisconnect, Conn: h} }
func written(h ConnHandle, a Attr) Event {
	return Event{Class: EventGattsWrite, Conn: h, Attr: a}
}
