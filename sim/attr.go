package sim

import (
	"encoding/binary"

	gatt "github.com/XC-/gatt-peripheral"
)

// attr is one entry of the simulated attribute table.
type attr struct {
	h     uint16    // attribute handle
	typ   gatt.UUID // attribute type
	props gatt.Property
	value []byte
}

// generateAttributes lays out svcs the way a GATT server does:
// service declaration, then for each characteristic its declaration,
// its value, a client configuration descriptor if it can notify or
// indicate, and its own descriptors.
func generateAttributes(svcs []*gatt.Service, base uint16) (*attrRange, gatt.HandleTable) {
	var aa []attr
	var table [][]gatt.CharHandles
	n := base
	for _, svc := range svcs {
		aa = append(aa, attr{h: n, typ: gatt.AttrPrimaryServiceUUID, value: svc.UUID().Bytes()})
		n++

		var chars []gatt.CharHandles
		for _, c := range svc.Characteristics() {
			vh := n + 1
			decl := make([]byte, 3, 3+c.UUID().Len())
			decl[0] = byte(c.Properties())
			binary.LittleEndian.PutUint16(decl[1:], vh)
			decl = append(decl, c.UUID().Bytes()...)
			aa = append(aa, attr{h: n, typ: gatt.AttrCharacteristicUUID, value: decl})
			aa = append(aa, attr{h: vh, typ: c.UUID(), props: c.Properties(), value: append([]byte(nil), c.Value()...)})
			n += 2

			ch := gatt.CharHandles{Value: gatt.Attr(vh)}
			if c.Properties()&(gatt.CharNotify|gatt.CharIndicate) != 0 {
				aa = append(aa, attr{h: n, typ: gatt.AttrClientCharacteristicConfigUUID, props: gatt.CharRead | gatt.CharWrite, value: []byte{0, 0}})
				n++
			}
			for _, d := range c.Descriptors() {
				aa = append(aa, attr{h: n, typ: d.UUID(), props: d.Properties(), value: append([]byte(nil), d.Value()...)})
				ch.Descriptors = append(ch.Descriptors, gatt.Attr(n))
				n++
			}
			chars = append(chars, ch)
		}
		table = append(table, chars)
	}
	return &attrRange{aa: aa, base: base}, gatt.NewHandleTable(table)
}

// An attrRange is a contiguous range of attributes.
type attrRange struct {
	aa   []attr
	base uint16 // handle for first attr in aa
}

const (
	tooSmall = -1
	tooLarge = -2
)

// idx returns the index into aa corresponding to attr a.
// If h is too small, idx returns tooSmall (-1).
// If h is too large, idx returns tooLarge (-2).
func (r *attrRange) idx(h int) int {
	if h < int(r.base) {
		return tooSmall
	}
	if h >= int(r.base)+len(r.aa) {
		return tooLarge
	}
	return h - int(r.base)
}

// At returns attr a.
func (r *attrRange) At(h uint16) (a *attr, ok bool) {
	i := r.idx(int(h))
	if i < 0 {
		return nil, false
	}
	return &r.aa[i], true
}

// Subrange returns attributes in range [start, end]; it may
// return an empty slice. Subrange does not panic for
// out-of-range start or end.
func (r *attrRange) Subrange(start, end uint16) []attr {
	startidx := r.idx(int(start))
	switch startidx {
	case tooSmall:
		startidx = 0
	case tooLarge:
		return []attr{}
	}

	endidx := r.idx(int(end) + 1) // [start, end] includes its upper bound!
	switch endidx {
	case tooSmall:
		return []attr{}
	case tooLarge:
		endidx = len(r.aa)
	}
	return r.aa[startidx:endidx]
}
