package gatt

// CharHandles are the handles a radio assigned to one characteristic.
type CharHandles struct {
	Value       Attr
	Descriptors []Attr
}

// A HandleTable maps (service index, characteristic index) pairs to the
// handles assigned when the services were registered. Indexes follow the
// order of the registered service tree. A HandleTable is immutable.
type HandleTable struct {
	svcs [][]CharHandles
}

// NewHandleTable returns a HandleTable holding a copy of svcs.
func NewHandleTable(svcs [][]CharHandles) HandleTable {
	t := HandleTable{svcs: make([][]CharHandles, len(svcs))}
	for i, chars := range svcs {
		cc := make([]CharHandles, len(chars))
		for j, c := range chars {
			cc[j] = CharHandles{Value: c.Value, Descriptors: append([]Attr(nil), c.Descriptors...)}
		}
		t.svcs[i] = cc
	}
	return t
}

// Len returns the number of services.
func (t HandleTable) Len() int { return len(t.svcs) }

// Characteristics returns the value handles of service svc's characteristics.
func (t HandleTable) Characteristics(svc int) []Attr {
	if svc < 0 || svc >= len(t.svcs) {
		return nil
	}
	aa := make([]Attr, len(t.svcs[svc]))
	for i, c := range t.svcs[svc] {
		aa[i] = c.Value
	}
	return aa
}

// Value returns the value handle of characteristic chr of service svc.
func (t HandleTable) Value(svc, chr int) (Attr, bool) {
	c, ok := t.char(svc, chr)
	return c.Value, ok
}

// Descriptor returns the handle of descriptor d of characteristic chr of
// service svc.
func (t HandleTable) Descriptor(svc, chr, d int) (Attr, bool) {
	c, ok := t.char(svc, chr)
	if !ok || d < 0 || d >= len(c.Descriptors) {
		return 0, false
	}
	return c.Descriptors[d], true
}

func (t HandleTable) char(svc, chr int) (CharHandles, bool) {
	if svc < 0 || svc >= len(t.svcs) || chr < 0 || chr >= len(t.svcs[svc]) {
		return CharHandles{}, false
	}
	return t.svcs[svc][chr], true
}
