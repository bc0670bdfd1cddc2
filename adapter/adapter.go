// Package adapter implements gatt.Radio on top of tinygo.org/x/bluetooth,
// which drives BlueZ on Linux, CoreBluetooth on macOS, WinRT on Windows
// and the Nordic SoftDevice on microcontrollers.
//
// The bluetooth package notifies every subscribed central at once, so
// Radio implements gatt.Broadcaster. Its characteristics do not expose
// their stored value; Radio keeps a copy of what was written.
package adapter

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	gatt "github.com/XC-/gatt-peripheral"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

var (
	ErrUnknownConn = errors.New("adapter: unknown connection")
	ErrUnknownAttr = errors.New("adapter: unknown attribute")
)

// DefaultWriteBuffer is the number of bytes a central may write to a
// value until SetWriteBuffer changes it.
const DefaultWriteBuffer = 20

type writeBuffer struct {
	max    int
	append bool
}

type value struct {
	char  bluetooth.Characteristic
	value []byte
	buf   writeBuffer
}

// Radio is a gatt.Radio backed by a bluetooth.Adapter.
type Radio struct {
	bt  *bluetooth.Adapter
	log logrus.FieldLogger

	mu       sync.Mutex
	callback func(gatt.Event)
	values   map[gatt.Attr]*value
	byAddr   map[string]gatt.ConnHandle
	devices  map[gatt.ConnHandle]bluetooth.Device
	last     gatt.ConnHandle // most recent connection
}

// An Option configures a Radio.
type Option func(*Radio)

// Logger sets the logger. The default is the logrus standard logger.
func Logger(l logrus.FieldLogger) Option {
	return func(r *Radio) { r.log = l }
}

// New returns a Radio on bt, usually bluetooth.DefaultAdapter.
func New(bt *bluetooth.Adapter, opts ...Option) *Radio {
	r := &Radio{
		bt:      bt,
		log:     logrus.StandardLogger(),
		values:  make(map[gatt.Attr]*value),
		byAddr:  make(map[string]gatt.ConnHandle),
		devices: make(map[gatt.ConnHandle]bluetooth.Device),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Radio) Activate() error {
	if err := r.bt.Enable(); err != nil {
		return fmt.Errorf("enable adapter: %w", err)
	}
	r.bt.SetConnectHandler(r.onConnect)
	return nil
}

func (r *Radio) RegisterEventCallback(f func(gatt.Event)) {
	r.mu.Lock()
	r.callback = f
	r.mu.Unlock()
}

// RegisterServices adds svcs to the adapter. Value handles are numbered
// from 1 in registration order. Descriptors other than the client
// configuration are managed by the stack and get no handle.
func (r *Radio) RegisterServices(svcs []*gatt.Service) (gatt.HandleTable, error) {
	var table [][]gatt.CharHandles
	next := gatt.Attr(1)
	for _, svc := range svcs {
		u, err := btUUID(svc.UUID())
		if err != nil {
			return gatt.HandleTable{}, err
		}
		bs := &bluetooth.Service{UUID: u}
		var chars []gatt.CharHandles
		for _, c := range svc.Characteristics() {
			cu, err := btUUID(c.UUID())
			if err != nil {
				return gatt.HandleTable{}, err
			}
			a := next
			next++
			v := &value{value: append([]byte(nil), c.Value()...), buf: writeBuffer{max: DefaultWriteBuffer}}
			r.mu.Lock()
			r.values[a] = v
			r.mu.Unlock()
			if len(c.Descriptors()) > 0 {
				r.log.WithField("char", c.UUID()).Warn("adapter: characteristic descriptors are not registered")
			}
			bs.Characteristics = append(bs.Characteristics, bluetooth.CharacteristicConfig{
				Handle: &v.char,
				UUID:   cu,
				Value:  c.Value(),
				Flags:  permissions(c.Properties()),
				WriteEvent: func(client bluetooth.Connection, offset int, b []byte) {
					r.onWrite(a, client, offset, b)
				},
			})
			chars = append(chars, gatt.CharHandles{Value: a})
		}
		if err := r.bt.AddService(bs); err != nil {
			return gatt.HandleTable{}, fmt.Errorf("add service %s: %w", svc.UUID(), err)
		}
		table = append(table, chars)
	}
	return gatt.NewHandleTable(table), nil
}

// Advertise configures the default advertisement from the name and
// service UUIDs found in payload and starts it. Other AD structures of
// the payload are not sent.
func (r *Radio) Advertise(interval time.Duration, payload []byte) error {
	var adv gatt.Advertisement
	if err := adv.Unmarshal(payload); err != nil {
		return err
	}
	opts := bluetooth.AdvertisementOptions{
		LocalName: adv.LocalName,
		Interval:  bluetooth.NewDuration(interval),
	}
	for _, u := range adv.Services {
		bu, err := btUUID(u)
		if err != nil {
			return err
		}
		opts.ServiceUUIDs = append(opts.ServiceUUIDs, bu)
	}

	a := r.bt.DefaultAdvertisement()
	_ = a.Stop() // not advertising is fine
	if err := a.Configure(opts); err != nil {
		return fmt.Errorf("configure advertisement: %w", err)
	}
	if err := a.Start(); err != nil {
		return fmt.Errorf("start advertisement: %w", err)
	}
	r.log.WithFields(logrus.Fields{"name": adv.LocalName, "services": len(adv.Services)}).Debug("adapter: advertising")
	return nil
}

func (r *Radio) StopAdvertising() error {
	return r.bt.DefaultAdvertisement().Stop()
}

func (r *Radio) lookup(a gatt.Attr) (*value, error) {
	v, ok := r.values[a]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAttr, a)
	}
	return v, nil
}

// ReadValue returns the stored value of a. A value whose write buffer is
// in append mode is emptied by the read.
func (r *Radio) ReadValue(a gatt.Attr) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, err := r.lookup(a)
	if err != nil {
		return nil, err
	}
	b := append([]byte(nil), v.value...)
	if v.buf.append {
		v.value = nil
	}
	return b, nil
}

// WriteValue stores b. The stack notifies subscribed centrals of every
// value it is given.
func (r *Radio) WriteValue(a gatt.Attr, b []byte) error {
	r.mu.Lock()
	v, err := r.lookup(a)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	v.value = append([]byte(nil), b...)
	r.mu.Unlock()

	if _, err := v.char.Write(b); err != nil {
		return fmt.Errorf("write characteristic: %w", err)
	}
	return nil
}

// Broadcast notifies every subscribed central of a. A nil b sends the
// stored value.
func (r *Radio) Broadcast(a gatt.Attr, b []byte) error {
	r.mu.Lock()
	v, err := r.lookup(a)
	if b == nil && err == nil {
		b = append([]byte(nil), v.value...)
	}
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if _, err := v.char.Write(b); err != nil {
		return fmt.Errorf("notify characteristic: %w", err)
	}
	return nil
}

// Notify notifies a. The stack cannot address a single central, so
// every subscribed central receives it.
func (r *Radio) Notify(h gatt.ConnHandle, a gatt.Attr, b []byte) error {
	r.mu.Lock()
	_, ok := r.devices[h]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownConn, h)
	}
	return r.Broadcast(a, b)
}

// Disconnect asks the stack to drop h. The disconnect event follows
// from the stack.
func (r *Radio) Disconnect(h gatt.ConnHandle) error {
	r.mu.Lock()
	dev, ok := r.devices[h]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownConn, h)
	}
	return dev.Disconnect()
}

func (r *Radio) SetWriteBuffer(a gatt.Attr, n int, append bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, err := r.lookup(a)
	if err != nil {
		return err
	}
	v.buf = writeBuffer{max: n, append: append}
	return nil
}

// onWrite runs on the stack's event context.
func (r *Radio) onWrite(a gatt.Attr, client bluetooth.Connection, offset int, b []byte) {
	r.mu.Lock()
	v, ok := r.values[a]
	if !ok {
		r.mu.Unlock()
		return
	}
	v.value = applyWrite(v.value, b, offset, v.buf)
	h := gatt.ConnHandle(client)
	if _, ok := r.devices[h]; !ok {
		h = r.last
	}
	f := r.callback
	r.mu.Unlock()

	if f != nil {
		f(gatt.Event{Class: gatt.EventGattsWrite, Conn: h, Attr: a})
	}
}

// onConnect runs on the stack's event context. Centrals are told apart by
// address and get the lowest free handle.
func (r *Radio) onConnect(dev bluetooth.Device, connected bool) {
	key := dev.Address.String()
	ev := gatt.Event{Conn: 0, PeerAddr: peerAddr(key)}

	r.mu.Lock()
	if connected {
		if _, dup := r.byAddr[key]; dup {
			r.mu.Unlock()
			return
		}
		h := lowestFree(r.devices)
		r.byAddr[key] = h
		r.devices[h] = dev
		r.last = h
		ev.Class, ev.Conn = gatt.EventCentralConnect, h
	} else {
		h, ok := r.byAddr[key]
		if !ok {
			r.mu.Unlock()
			return
		}
		delete(r.byAddr, key)
		delete(r.devices, h)
		ev.Class, ev.Conn = gatt.EventCentralDisconnect, h
	}
	f := r.callback
	r.mu.Unlock()

	if f != nil {
		f(ev)
	}
}

// applyWrite returns the value after a central wrote b at offset.
// In append mode b is added to old, otherwise it replaces old from
// offset on. The result is cut to the buffer size.
func applyWrite(old, b []byte, offset int, buf writeBuffer) []byte {
	var v []byte
	switch {
	case buf.append:
		v = append(append(v, old...), b...)
	case offset > 0 && offset <= len(old):
		v = append(append(v, old[:offset]...), b...)
	default:
		v = append(v, b...)
	}
	if len(v) > buf.max {
		v = v[:buf.max]
	}
	return v
}

func lowestFree(used map[gatt.ConnHandle]bluetooth.Device) gatt.ConnHandle {
	var h gatt.ConnHandle
	for {
		if _, ok := used[h]; !ok {
			return h
		}
		h++
	}
}

// peerAddr parses a MAC address string. Platforms that identify peers
// some other way get a zero address.
func peerAddr(s string) (addr [6]byte) {
	if mac, err := net.ParseMAC(s); err == nil && len(mac) == 6 {
		copy(addr[:], mac)
	}
	return addr
}

// btUUID converts u to a bluetooth.UUID.
func btUUID(u gatt.UUID) (bluetooth.UUID, error) {
	if v, ok := u.Uint16(); ok {
		return bluetooth.New16BitUUID(v), nil
	}
	bu, err := bluetooth.ParseUUID(u.Widen().String())
	if err != nil {
		return bluetooth.UUID{}, fmt.Errorf("uuid %s: %w", u, err)
	}
	return bu, nil
}

func permissions(p gatt.Property) bluetooth.CharacteristicPermissions {
	var f bluetooth.CharacteristicPermissions
	if p&gatt.CharBroadcast != 0 {
		f |= bluetooth.CharacteristicBroadcastPermission
	}
	if p&gatt.CharRead != 0 {
		f |= bluetooth.CharacteristicReadPermission
	}
	if p&gatt.CharWriteNR != 0 {
		f |= bluetooth.CharacteristicWriteWithoutResponsePermission
	}
	if p&gatt.CharWrite != 0 {
		f |= bluetooth.CharacteristicWritePermission
	}
	if p&gatt.CharNotify != 0 {
		f |= bluetooth.CharacteristicNotifyPermission
	}
	if p&gatt.CharIndicate != 0 {
		f |= bluetooth.CharacteristicIndicatePermission
	}
	return f
}

var (
	_ gatt.Radio       = (*Radio)(nil)
	_ gatt.Broadcaster = (*Radio)(nil)
)
