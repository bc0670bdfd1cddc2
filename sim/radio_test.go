package sim

import (
	"testing"
	"time"

	gatt "github.com/XC-/gatt-peripheral"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRadio(t *testing.T) (*Radio, gatt.HandleTable, *[]gatt.Event) {
	t.Helper()
	r := New()
	require.NoError(t, r.Activate())
	var events []gatt.Event
	r.RegisterEventCallback(func(ev gatt.Event) { events = append(events, ev) })

	svc := gatt.NewService(gatt.UUID16(0x181A))
	svc.AddCharacteristic(gatt.UUID16(0x2A6E), gatt.CharRead|gatt.CharNotify).SetValue([]byte{1, 2})
	ht, err := r.RegisterServices([]*gatt.Service{svc})
	require.NoError(t, err)
	return r, ht, &events
}

func TestRegisterRequiresActivate(t *testing.T) {
	r := New()
	_, err := r.RegisterServices(nil)
	assert.ErrorIs(t, err, ErrInactive)
	assert.ErrorIs(t, r.Advertise(time.Second, nil), ErrInactive)
}

func TestReadWriteValue(t *testing.T) {
	r, ht, _ := newRadio(t)
	a, _ := ht.Value(0, 0)

	b, err := r.ReadValue(a)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, b)

	require.NoError(t, r.WriteValue(a, []byte{0, 0}))
	b, err = r.ReadValue(a)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0}, b)

	_, err = r.ReadValue(99)
	assert.ErrorIs(t, err, ErrUnknownAttr)
	assert.ErrorIs(t, r.WriteValue(99, nil), ErrUnknownAttr)
}

func TestConnectReusesHandles(t *testing.T) {
	r, _, events := newRadio(t)
	require.NoError(t, r.Advertise(time.Millisecond, []byte{2, 1, 6}))

	h0, err := r.Connect(0, [6]byte{1})
	require.NoError(t, err)
	h1, err := r.Connect(1, [6]byte{2})
	require.NoError(t, err)
	assert.Equal(t, gatt.ConnHandle(0), h0)
	assert.Equal(t, gatt.ConnHandle(1), h1)

	on, _, _ := r.Advertising()
	assert.False(t, on, "connecting stops advertising")

	require.NoError(t, r.Disconnect(h0))
	assert.ErrorIs(t, r.Disconnect(h0), ErrUnknownConn)
	h2, err := r.Connect(0, [6]byte{3})
	require.NoError(t, err)
	assert.Equal(t, h0, h2)

	want := []gatt.EventClass{
		gatt.EventCentralConnect,
		gatt.EventCentralConnect,
		gatt.EventCentralDisconnect,
		gatt.EventCentralConnect,
	}
	require.Len(t, *events, len(want))
	for i, ev := range *events {
		assert.Equal(t, want[i], ev.Class)
	}
	assert.Equal(t, [6]byte{1}, (*events)[2].PeerAddr)
	assert.Equal(t, uint8(1), (*events)[1].PeerAddrType)
}

func TestWriteFromCentral(t *testing.T) {
	r, ht, events := newRadio(t)
	a, _ := ht.Value(0, 0)
	h, err := r.Connect(0, [6]byte{})
	require.NoError(t, err)

	long := make([]byte, 30)
	require.NoError(t, r.WriteFromCentral(h, a, long))
	b, _ := r.ReadValue(a)
	assert.Len(t, b, DefaultWriteBuffer)

	require.NoError(t, r.SetWriteBuffer(a, 5, true))
	require.NoError(t, r.WriteValue(a, nil))
	require.NoError(t, r.WriteFromCentral(h, a, []byte("abc")))
	require.NoError(t, r.WriteFromCentral(h, a, []byte("def")))
	b, _ = r.ReadValue(a)
	assert.Equal(t, []byte("abcde"), b)
	b, _ = r.ReadValue(a)
	assert.Empty(t, b, "reading an append buffer empties it")

	require.NoError(t, r.SetWriteBuffer(a, 5, false))
	require.NoError(t, r.WriteFromCentral(h, a, []byte("xy")))
	b, _ = r.ReadValue(a)
	assert.Equal(t, []byte("xy"), b)

	last := (*events)[len(*events)-1]
	assert.Equal(t, gatt.EventGattsWrite, last.Class)
	assert.Equal(t, a, last.Attr)
	assert.Equal(t, h, last.Conn)

	assert.ErrorIs(t, r.WriteFromCentral(7, a, nil), ErrUnknownConn)
	assert.ErrorIs(t, r.WriteFromCentral(h, 99, nil), ErrUnknownAttr)
}

func TestNotify(t *testing.T) {
	r, ht, _ := newRadio(t)
	a, _ := ht.Value(0, 0)
	h, err := r.Connect(0, [6]byte{})
	require.NoError(t, err)

	var hooked []gatt.ConnHandle
	r.NotifyHook = func(h gatt.ConnHandle, _ gatt.Attr) { hooked = append(hooked, h) }

	require.NoError(t, r.Notify(h, a, nil))
	require.NoError(t, r.Notify(h, a, []byte{9}))
	assert.ErrorIs(t, r.Notify(5, a, nil), ErrUnknownConn)

	assert.Equal(t, []Notification{
		{Conn: h, Attr: a, Value: []byte{1, 2}},
		{Conn: h, Attr: a, Value: []byte{9}},
	}, r.Notifications())
	assert.Equal(t, []gatt.ConnHandle{h, h, 5}, hooked)
}

func TestDiscover(t *testing.T) {
	r, _, _ := newRadio(t)
	aa := r.Discover(1, 0xffff)
	require.Len(t, aa, 4)
	assert.True(t, aa[0].Type.Equal(gatt.AttrPrimaryServiceUUID))
	assert.Equal(t, []byte{0x1a, 0x18}, aa[0].Value)
	assert.Empty(t, r.Discover(5, 10))
}
