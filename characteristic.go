package gatt

import "strings"

// Property is a set of characteristic property flags.
type Property uint8

// Do not re-order the bit flags below;
// they are organized to match the BLE spec.

// Characteristic property flags.
const (
	CharBroadcast Property = 1 << iota // the characteristic value may be broadcast
	CharRead                           // the characteristic may be read
	CharWriteNR                        // the characteristic may be written to, with no reply
	CharWrite                          // the characteristic may be written to, with a reply
	CharNotify                         // the characteristic supports notifications
	CharIndicate                       // the characteristic supports indications
)

var propNames = []string{"broadcast", "read", "writenr", "write", "notify", "indicate"}

func (p Property) String() string {
	var ss []string
	for i, n := range propNames {
		if p&(1<<uint(i)) != 0 {
			ss = append(ss, n)
		}
	}
	return strings.Join(ss, "|")
}

// A Characteristic is a BLE characteristic.
type Characteristic struct {
	uuid  UUID
	props Property
	value []byte // initial value
	descs []*Descriptor

	// storage used by other types
	service *Service
}

// SetValue sets the initial value of the characteristic.
// It must be called before the service is registered.
func (c *Characteristic) SetValue(b []byte) *Characteristic {
	c.value = append([]byte(nil), b...)
	return c
}

// AddDescriptor adds a descriptor to the characteristic.
// AddDescriptor panics if the characteristic already contains
// another descriptor with the same UUID.
func (c *Characteristic) AddDescriptor(u UUID, props Property) *Descriptor {
	for _, d := range c.descs {
		if d.uuid.Equal(u) {
			panic("characteristic already contains a descriptor with uuid " + u.String())
		}
	}
	d := &Descriptor{uuid: u, props: props, char: c}
	c.descs = append(c.descs, d)
	return d
}

// UUID returns the characteristic's UUID
func (c *Characteristic) UUID() UUID { return c.uuid }

// Properties returns the characteristic's properties.
func (c *Characteristic) Properties() Property { return c.props }

// Value returns the initial value.
func (c *Characteristic) Value() []byte { return c.value }

// Descriptors returns the characteristic's descriptors.
func (c *Characteristic) Descriptors() []*Descriptor { return c.descs }

// Service returns the service the characteristic belongs to.
func (c *Characteristic) Service() *Service { return c.service }
