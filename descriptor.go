package gatt

// A Descriptor is a BLE characteristic descriptor.
type Descriptor struct {
	uuid  UUID
	props Property
	value []byte // initial value

	char *Characteristic
}

// SetValue sets the initial value of the descriptor.
func (d *Descriptor) SetValue(b []byte) *Descriptor {
	d.value = append([]byte(nil), b...)
	return d
}

func (d *Descriptor) UUID() UUID                      { return d.uuid }
func (d *Descriptor) Properties() Property            { return d.props }
func (d *Descriptor) Value() []byte                   { return d.value }
func (d *Descriptor) Characteristic() *Characteristic { return d.char }
