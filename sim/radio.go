// Package sim provides an in-memory gatt.Radio. Test code plays the part
// of the centrals: Connect, Disconnect and WriteFromCentral raise events
// synchronously on the calling goroutine, as a radio does from its event
// context.
package sim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	gatt "github.com/XC-/gatt-peripheral"
	"github.com/sirupsen/logrus"
)

var (
	ErrUnknownConn = errors.New("sim: unknown connection")
	ErrUnknownAttr = errors.New("sim: unknown attribute")
	ErrInactive    = errors.New("sim: radio not active")
)

// DefaultWriteBuffer is the number of bytes a central may write to a
// value until SetWriteBuffer changes it.
const DefaultWriteBuffer = 20

// MaxConnections is the number of links the simulated controller supports.
const MaxConnections = 8

// A Notification is a notification sent to a central.
type Notification struct {
	Conn  gatt.ConnHandle
	Attr  gatt.Attr
	Value []byte
}

// An Attribute is an entry of the attribute table, as seen by a central.
type Attribute struct {
	Handle uint16
	Type   gatt.UUID
	Value  []byte
}

type peer struct {
	addrType uint8
	addr     [6]byte
}

type writeBuffer struct {
	max    int
	append bool
}

// Radio is a simulated radio. The zero value is not usable; use New.
type Radio struct {
	log logrus.FieldLogger

	// NotifyHook, if set, is called at the start of every Notify,
	// before the connection is looked up.
	NotifyHook func(h gatt.ConnHandle, a gatt.Attr)

	mu       sync.Mutex
	active   bool
	callback func(gatt.Event)
	attrs    *attrRange
	bufs     map[uint16]writeBuffer
	conns    map[gatt.ConnHandle]peer
	notes    []Notification

	advertising bool
	interval    time.Duration
	payload     []byte
	advStarts   int
}

// An Option configures a Radio.
type Option func(*Radio)

// Logger sets the logger. The default is the logrus standard logger.
func Logger(l logrus.FieldLogger) Option {
	return func(r *Radio) { r.log = l }
}

// New returns an inactive simulated radio.
func New(opts ...Option) *Radio {
	r := &Radio{
		log:   logrus.StandardLogger(),
		attrs: &attrRange{base: 1},
		bufs:  make(map[uint16]writeBuffer),
		conns: make(map[gatt.ConnHandle]peer),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Radio) Activate() error {
	r.mu.Lock()
	r.active = true
	r.mu.Unlock()
	return nil
}

func (r *Radio) RegisterEventCallback(f func(gatt.Event)) {
	r.mu.Lock()
	r.callback = f
	r.mu.Unlock()
}

// RegisterServices replaces the attribute table. Handles start at 1.
func (r *Radio) RegisterServices(svcs []*gatt.Service) (gatt.HandleTable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return gatt.HandleTable{}, ErrInactive
	}
	attrs, ht := generateAttributes(svcs, 1) // ble handles start at 1
	r.attrs = attrs
	clear(r.bufs)
	r.log.WithField("attributes", len(attrs.aa)).Debug("sim: services registered")
	return ht, nil
}

func (r *Radio) Advertise(interval time.Duration, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return ErrInactive
	}
	r.advertising = true
	r.interval = interval
	r.payload = append([]byte(nil), payload...)
	r.advStarts++
	return nil
}

func (r *Radio) StopAdvertising() error {
	r.mu.Lock()
	r.advertising = false
	r.mu.Unlock()
	return nil
}

// ReadValue returns the value of a. A value whose write buffer is in
// append mode is emptied by the read.
func (r *Radio) ReadValue(a gatt.Attr) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.attrs.At(uint16(a))
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAttr, a)
	}
	b := append([]byte(nil), at.value...)
	if r.bufs[uint16(a)].append {
		at.value = nil
	}
	return b, nil
}

func (r *Radio) WriteValue(a gatt.Attr, b []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.attrs.At(uint16(a))
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownAttr, a)
	}
	at.value = append([]byte(nil), b...)
	return nil
}

func (r *Radio) Notify(h gatt.ConnHandle, a gatt.Attr, b []byte) error {
	if hook := r.NotifyHook; hook != nil {
		hook(h, a)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[h]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownConn, h)
	}
	at, ok := r.attrs.At(uint16(a))
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownAttr, a)
	}
	if b == nil {
		b = at.value
	}
	r.notes = append(r.notes, Notification{Conn: h, Attr: a, Value: append([]byte(nil), b...)})
	return nil
}

// Disconnect drops the link h and raises a disconnect event.
func (r *Radio) Disconnect(h gatt.ConnHandle) error {
	r.mu.Lock()
	p, ok := r.conns[h]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownConn, h)
	}
	delete(r.conns, h)
	r.mu.Unlock()

	r.raise(gatt.Event{Class: gatt.EventCentralDisconnect, Conn: h, PeerAddrType: p.addrType, PeerAddr: p.addr})
	return nil
}

func (r *Radio) SetWriteBuffer(a gatt.Attr, n int, append bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.attrs.At(uint16(a)); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownAttr, a)
	}
	r.bufs[uint16(a)] = writeBuffer{max: n, append: append}
	return nil
}

// raise delivers ev to the registered callback, without holding mu.
func (r *Radio) raise(ev gatt.Event) {
	r.mu.Lock()
	f := r.callback
	r.mu.Unlock()
	if f != nil {
		f(ev)
	}
}

// Connect connects a central and raises a connect event. The central
// gets the lowest free handle. Advertising stops, as it does on a
// connectable advertiser.
func (r *Radio) Connect(addrType uint8, addr [6]byte) (gatt.ConnHandle, error) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return 0, ErrInactive
	}
	h := gatt.ConnHandle(0)
	for ; int(h) < MaxConnections; h++ {
		if _, used := r.conns[h]; !used {
			break
		}
	}
	if int(h) == MaxConnections {
		r.mu.Unlock()
		return 0, errors.New("sim: no free connection")
	}
	r.conns[h] = peer{addrType: addrType, addr: addr}
	r.advertising = false
	r.mu.Unlock()

	r.raise(gatt.Event{Class: gatt.EventCentralConnect, Conn: h, PeerAddrType: addrType, PeerAddr: addr})
	return h, nil
}

// WriteFromCentral writes b to a as the central on h would, and raises a
// write event. The value is cut to the write buffer of a, and appended to
// the stored value if the buffer is in append mode.
func (r *Radio) WriteFromCentral(h gatt.ConnHandle, a gatt.Attr, b []byte) error {
	r.mu.Lock()
	if _, ok := r.conns[h]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownConn, h)
	}
	at, ok := r.attrs.At(uint16(a))
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownAttr, a)
	}
	buf, ok := r.bufs[uint16(a)]
	if !ok {
		buf = writeBuffer{max: DefaultWriteBuffer}
	}
	v := b
	if buf.append {
		v = append(append([]byte(nil), at.value...), b...)
	}
	if len(v) > buf.max {
		v = v[:buf.max]
	}
	at.value = append([]byte(nil), v...)
	r.mu.Unlock()

	r.raise(gatt.Event{Class: gatt.EventGattsWrite, Conn: h, Attr: a})
	return nil
}

// Advertising reports whether the radio is advertising, and with which
// interval and payload.
func (r *Radio) Advertising() (on bool, interval time.Duration, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.advertising, r.interval, append([]byte(nil), r.payload...)
}

// AdvertiseCount returns how many times advertising was started.
func (r *Radio) AdvertiseCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.advStarts
}

// Notifications returns the notifications sent so far.
func (r *Radio) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notes...)
}

// Connected reports whether h is connected.
func (r *Radio) Connected(h gatt.ConnHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[h]
	return ok
}

// Discover returns the attributes with handles in [start, end].
func (r *Radio) Discover(start, end uint16) []Attribute {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Attribute
	for _, a := range r.attrs.Subrange(start, end) {
		out = append(out, Attribute{Handle: a.h, Type: a.typ, Value: append([]byte(nil), a.value...)})
	}
	return out
}

var _ gatt.Radio = (*Radio)(nil)
