package gatt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

// MaxAdvertisingPayload is the maximum allowed length of a legacy
// advertising payload.
const MaxAdvertisingPayload = 31

var (
	// ErrPayloadTooLarge is returned when the AD structures of an
	// advertising payload do not fit in MaxAdvertisingPayload bytes.
	ErrPayloadTooLarge = errors.New("advertising payload exceeds 31 bytes")

	// ErrMalformedPayload is returned when an AD structure's length
	// byte overruns the end of the buffer.
	ErrMalformedPayload = errors.New("malformed advertising payload")
)

// advertising data field types
const (
	typeFlags            = 0x01 // Flags
	typeSomeUUID16       = 0x02 // Incomplete List of 16-bit Service Class UUIDs
	typeAllUUID16        = 0x03 // Complete List of 16-bit Service Class UUIDs
	typeSomeUUID32       = 0x04 // Incomplete List of 32-bit Service Class UUIDs
	typeAllUUID32        = 0x05 // Complete List of 32-bit Service Class UUIDs
	typeSomeUUID128      = 0x06 // Incomplete List of 128-bit Service Class UUIDs
	typeAllUUID128       = 0x07 // Complete List of 128-bit Service Class UUIDs
	typeShortName        = 0x08 // Shortened Local Name
	typeCompleteName     = 0x09 // Complete Local Name
	typeTxPower          = 0x0A // Tx Power Level
	typeServiceData16    = 0x16 // Service Data - 16-bit UUID
	typeAppearance       = 0x19 // Appearance
	typeServiceData32    = 0x20 // Service Data - 32-bit UUID
	typeServiceData128   = 0x21 // Service Data - 128-bit UUID
	typeManufacturerData = 0xFF // Manufacturer Specific Data
)

// flag bits
const (
	flagLimitedDiscoverable = 1 << iota // LE Limited Discoverable Mode
	flagGeneralDiscoverable             // LE General Discoverable Mode
	flagLEOnly                          // BR/EDR Not Supported. Bit 37 of LMP Feature Mask Definitions (Page 0)
)

// AdvertisingParams describes the content of an advertising payload.
type AdvertisingParams struct {
	Name        string
	Services    []UUID
	ServiceData []byte // raw Service Data field, leading 16-bit UUID included
	Appearance  uint16

	// Payload, if non-nil, is used verbatim and every other field is ignored.
	Payload []byte
}

// An ADStructure is one length-prefixed field of an advertising payload.
type ADStructure struct {
	Type byte
	Data []byte
}

// Encode assembles an advertising payload from p.
//
// Fields are emitted in a fixed order: flags, appearance, local name,
// service UUID lists grouped by width, service data. The name is the only
// field that gets shortened to fit; anything else that overflows the
// payload makes Encode fail with ErrPayloadTooLarge.
func Encode(p AdvertisingParams) ([]byte, error) {
	if p.Payload != nil {
		if len(p.Payload) > MaxAdvertisingPayload {
			return nil, fmt.Errorf("%w: custom payload is %d bytes", ErrPayloadTooLarge, len(p.Payload))
		}
		b := make([]byte, len(p.Payload))
		copy(b, p.Payload)
		return b, nil
	}

	head := new(advPacket)
	head.appendField(typeFlags, []byte{flagGeneralDiscoverable | flagLEOnly})
	if p.Appearance != 0 {
		head.appendField(typeAppearance, []byte{byte(p.Appearance), byte(p.Appearance >> 8)})
	}

	tail := new(advPacket)
	tail.appendUUIDs(p.Services)
	if len(p.ServiceData) > 0 {
		tail.appendField(typeServiceData16, p.ServiceData)
	}

	if n := len(head.data) + len(tail.data); n > MaxAdvertisingPayload {
		return nil, fmt.Errorf("%w: %d bytes without name", ErrPayloadTooLarge, n)
	}

	if p.Name != "" {
		head.appendNameFit(p.Name, MaxAdvertisingPayload-len(head.data)-len(tail.data))
	}
	return append(head.data, tail.data...), nil
}

type advPacket struct {
	data []byte
}

// appendField appends a BLE advertising packet field.
func (p *advPacket) appendField(typ byte, data []byte) {
	// A field consists of len, typ, data.
	// Len is 1 byte for typ plus len(data).
	p.data = append(p.data, byte(len(data)+1))
	p.data = append(p.data, typ)
	p.data = append(p.data, data...)
}

// appendNameFit appends the local name, shortened to at most avail
// bytes of field. A name with no room at all is left out.
func (p *advPacket) appendNameFit(name string, avail int) {
	room := avail - 2
	if room <= 0 {
		return
	}
	typ := byte(typeCompleteName)
	if len(name) > room {
		name = name[:room]
		for len(name) > 0 && !utf8.ValidString(name) {
			name = name[:len(name)-1]
		}
		typ = typeShortName
	}
	if name == "" {
		return
	}
	p.appendField(typ, []byte(name))
}

// appendUUIDs appends one incomplete service UUID list per UUID width.
// Err on the side of safety and assume that there might be other
// services available: use the incomplete list types.
func (p *advPacket) appendUUIDs(uu []UUID) {
	var w16, w32, w128 []byte
	seen := make([]UUID, 0, len(uu))
	for _, u := range uu {
		if containsUUID(seen, u) {
			continue
		}
		seen = append(seen, u)
		switch u.Len() {
		case 2:
			w16 = append(w16, u.b...)
		case 4:
			w32 = append(w32, u.b...)
		case 16:
			w128 = append(w128, u.b...)
		}
	}
	if len(w16) > 0 {
		p.appendField(typeSomeUUID16, w16)
	}
	if len(w32) > 0 {
		p.appendField(typeSomeUUID32, w32)
	}
	if len(w128) > 0 {
		p.appendField(typeSomeUUID128, w128)
	}
}

func containsUUID(uu []UUID, u UUID) bool {
	for _, v := range uu {
		if v.Equal(u) {
			return true
		}
	}
	return false
}

// A Decoder reads the AD structures of a payload one at a time.
// It is single-pass: once Next has returned false it stays false.
type Decoder struct {
	b   []byte
	cur ADStructure
	err error
}

// NewDecoder returns a Decoder reading b. The Decoder does not copy b.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{b: b}
}

// Next advances to the next AD structure. It returns false at the end of
// the payload or on error; check Err to tell the two apart.
func (d *Decoder) Next() bool {
	if d.err != nil || len(d.b) == 0 {
		return false
	}
	l := int(d.b[0])
	if l == 0 {
		// Zero length marks the end of the significant part.
		d.b = nil
		return false
	}
	if len(d.b) < 1+l {
		d.err = fmt.Errorf("%w: field length %d, %d bytes left", ErrMalformedPayload, l, len(d.b)-1)
		d.b = nil
		return false
	}
	d.cur = ADStructure{Type: d.b[1], Data: d.b[2 : 1+l]}
	d.b = d.b[1+l:]
	return true
}

// Structure returns the AD structure read by the last call to Next.
// Data aliases the decoded buffer.
func (d *Decoder) Structure() ADStructure { return d.cur }

// Err returns the first error met by Next.
func (d *Decoder) Err() error { return d.err }

// DecodeName returns the first local name, shortened or complete, in b.
func DecodeName(b []byte) (string, error) {
	d := NewDecoder(b)
	for d.Next() {
		s := d.Structure()
		if s.Type == typeShortName || s.Type == typeCompleteName {
			return string(s.Data), nil
		}
	}
	return "", d.Err()
}

// DecodeServices returns the service UUIDs of every UUID list in b,
// complete or incomplete, in payload order.
func DecodeServices(b []byte) ([]UUID, error) {
	var uu []UUID
	d := NewDecoder(b)
	for d.Next() {
		s := d.Structure()
		switch s.Type {
		case typeSomeUUID16, typeAllUUID16:
			uu = uuidList(uu, s.Data, 2)
		case typeSomeUUID32, typeAllUUID32:
			uu = uuidList(uu, s.Data, 4)
		case typeSomeUUID128, typeAllUUID128:
			uu = uuidList(uu, s.Data, 16)
		}
	}
	return uu, d.Err()
}

// DecodeServiceData returns the data of the first Service Data field in b,
// including its leading UUID.
func DecodeServiceData(b []byte) ([]byte, error) {
	d := NewDecoder(b)
	for d.Next() {
		s := d.Structure()
		switch s.Type {
		case typeServiceData16, typeServiceData32, typeServiceData128:
			c := make([]byte, len(s.Data))
			copy(c, s.Data)
			return c, nil
		}
	}
	return nil, d.Err()
}

// DecodeAppearance returns the appearance value in b, or 0 if there is none.
func DecodeAppearance(b []byte) (uint16, error) {
	d := NewDecoder(b)
	for d.Next() {
		s := d.Structure()
		if s.Type == typeAppearance && len(s.Data) == 2 {
			return binary.LittleEndian.Uint16(s.Data), nil
		}
	}
	return 0, d.Err()
}

// uuidList appends the w-byte UUIDs packed in d to u.
// A trailing partial UUID is ignored.
func uuidList(u []UUID, d []byte, w int) []UUID {
	for len(d) >= w {
		v, _ := uuidFromWire(d[:w])
		u = append(u, v)
		d = d[w:]
	}
	return u
}

// An Advertisement is the decoded content of an advertising payload.
type Advertisement struct {
	LocalName        string
	ManufacturerData []byte
	ServiceData      []byte
	Services         []UUID
	Appearance       uint16
	TxPowerLevel     int
	Connectable      bool
}

// Unmarshal fills a from the advertising payload b.
func (a *Advertisement) Unmarshal(b []byte) error {
	d := NewDecoder(b)
	for d.Next() {
		s := d.Structure()
		switch s.Type {
		case typeFlags:
			a.Connectable = len(s.Data) > 0 && s.Data[0]&(flagLimitedDiscoverable|flagGeneralDiscoverable) != 0
		case typeSomeUUID16, typeAllUUID16:
			a.Services = uuidList(a.Services, s.Data, 2)
		case typeSomeUUID32, typeAllUUID32:
			a.Services = uuidList(a.Services, s.Data, 4)
		case typeSomeUUID128, typeAllUUID128:
			a.Services = uuidList(a.Services, s.Data, 16)
		case typeShortName, typeCompleteName:
			a.LocalName = string(s.Data)
		case typeTxPower:
			if len(s.Data) > 0 {
				a.TxPowerLevel = int(int8(s.Data[0]))
			}
		case typeAppearance:
			if len(s.Data) == 2 {
				a.Appearance = binary.LittleEndian.Uint16(s.Data)
			}
		case typeServiceData16, typeServiceData32, typeServiceData128:
			a.ServiceData = append([]byte(nil), s.Data...)
		case typeManufacturerData:
			a.ManufacturerData = append([]byte(nil), s.Data...)
		}
	}
	return d.Err()
}
