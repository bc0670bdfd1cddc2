package gatt

import (
	"fmt"
	"time"
)

// ConnHandle identifies one active link. The radio may reuse a handle
// once its link has been disconnected.
type ConnHandle uint16

// Attr is the handle of a characteristic value (or descriptor) assigned
// by the radio when services are registered.
type Attr uint16

// EventClass is the kind of a radio event.
type EventClass uint8

const (
	EventCentralConnect EventClass = iota + 1
	EventCentralDisconnect
	EventGattsWrite
)

func (c EventClass) String() string {
	switch c {
	case EventCentralConnect:
		return "central-connect"
	case EventCentralDisconnect:
		return "central-disconnect"
	case EventGattsWrite:
		return "gatts-write"
	}
	return fmt.Sprintf("event(%d)", uint8(c))
}

// An Event is raised by the radio from its event delivery context.
// PeerAddrType and PeerAddr are set for connect and disconnect events,
// Attr for write events.
type Event struct {
	Class        EventClass
	Conn         ConnHandle
	PeerAddrType uint8
	PeerAddr     [6]byte
	Attr         Attr
}

// Radio is the link-layer stack a Peripheral drives.
//
// The callback passed to RegisterEventCallback may be invoked from a
// context where blocking is not allowed; the Peripheral only does
// bounded, non-blocking work there.
type Radio interface {
	Activate() error
	RegisterEventCallback(f func(Event))
	RegisterServices(svcs []*Service) (HandleTable, error)

	// Advertise starts connectable advertising with the given payload,
	// replacing any advertising in progress.
	Advertise(interval time.Duration, payload []byte) error
	StopAdvertising() error

	// ReadValue returns the stored value of a. If the write buffer of a
	// is in append mode, the read empties it.
	ReadValue(a Attr) ([]byte, error)
	WriteValue(a Attr, b []byte) error

	// Notify sends a notification of a to the central on h.
	// A nil b sends the locally stored value.
	Notify(h ConnHandle, a Attr, b []byte) error
	Disconnect(h ConnHandle) error

	// SetWriteBuffer sets how many bytes a central may write to a, and
	// whether successive writes are appended instead of replacing the value.
	SetWriteBuffer(a Attr, n int, append bool) error
}

// A Broadcaster is a Radio that can only notify every subscribed central
// at once. Peripheral.Notify uses it in place of per-connection sends.
type Broadcaster interface {
	Broadcast(a Attr, b []byte) error
}
