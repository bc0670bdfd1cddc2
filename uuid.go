package gatt

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// A UUID is a BLE UUID.
type UUID struct {
	// Hide the bytes, so that we can enforce that they have length 2, 4 or 16,
	// and that they are immutable. Bytes are kept in little-endian (wire) order.
	b []byte
}

// baseUUID is the Bluetooth Base UUID, 00000000-0000-1000-8000-00805F9B34FB,
// in little-endian order. Short UUIDs occupy bytes 12 to 15.
var baseUUID = []byte{
	0xfb, 0x34, 0x9b, 0x5f, 0x80, 0x00, 0x00, 0x80,
	0x00, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// UUID16 converts a uint16 (such as 0x1800) to a UUID.
func UUID16(i uint16) UUID {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, i)
	return UUID{b}
}

// UUID32 converts a uint32 to a 32-bit UUID.
func UUID32(i uint32) UUID {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, i)
	return UUID{b}
}

// ParseUUID parses a standard-format UUID string, such
// as "1800" or "34DA3AD1-7110-41A1-B1EF-4430F509CDE7".
func ParseUUID(s string) (UUID, error) {
	switch len(s) {
	case 4, 8:
		b, err := hex.DecodeString(s)
		if err != nil {
			return UUID{}, err
		}
		return UUID{reverse(b)}, nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, err
	}
	return UUID{reverse(u[:])}, nil
}

// MustParseUUID parses a standard-format UUID string,
// like ParseUUID, but panics in case of error.
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// uuidFromWire builds a UUID from little-endian wire bytes.
func uuidFromWire(b []byte) (UUID, error) {
	if err := lenErr(len(b)); err != nil {
		return UUID{}, err
	}
	c := make([]byte, len(b))
	copy(c, b)
	return UUID{c}, nil
}

// lenErr returns an error if n is an invalid UUID length.
func lenErr(n int) error {
	switch n {
	case 2, 4, 16:
		return nil
	}
	return fmt.Errorf("UUIDs must have length 2, 4 or 16, got %d", n)
}

// Len returns the length of the UUID, in bytes.
// BLE UUIDs are either 2, 4 or 16 bytes.
func (u UUID) Len() int { return len(u.b) }

// Bytes returns a copy of the UUID in little-endian (wire) order.
func (u UUID) Bytes() []byte {
	c := make([]byte, len(u.b))
	copy(c, u.b)
	return c
}

// Uint16 returns the value of a 16-bit UUID.
// ok is false for 32- and 128-bit UUIDs.
func (u UUID) Uint16() (v uint16, ok bool) {
	if len(u.b) != 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(u.b), true
}

// Widen returns the 128-bit form of u.
// 16- and 32-bit UUIDs are expanded using the Bluetooth Base UUID.
func (u UUID) Widen() UUID {
	switch len(u.b) {
	case 2, 4:
		b := make([]byte, 16)
		copy(b, baseUUID)
		copy(b[12:], u.b)
		return UUID{b}
	}
	return u
}

// String hex-encodes a UUID. 128-bit UUIDs use the dashed canonical form.
func (u UUID) String() string {
	if len(u.b) != 16 {
		return fmt.Sprintf("%x", reverse(u.b))
	}
	var v uuid.UUID
	copy(v[:], reverse(u.b))
	return v.String()
}

// Equal returns a boolean reporting whether v represent the same UUID as u.
// A short UUID equals its expansion over the Base UUID.
func (u UUID) Equal(v UUID) bool {
	if len(u.b) == len(v.b) {
		return bytes.Equal(u.b, v.b)
	}
	return bytes.Equal(u.Widen().b, v.Widen().b)
}

// reverse returns a reversed copy of u.
func reverse(u []byte) []byte {
	// Special-case 16 bit UUIDS for speed.
	l := len(u)
	if l == 0 {
		return nil
	}
	if l == 2 {
		return []byte{u[1], u[0]}
	}
	b := make([]byte, l)
	for i := 0; i < l/2+1; i++ {
		b[i], b[l-i-1] = u[l-i-1], u[i]
	}
	return b
}
