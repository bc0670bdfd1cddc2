package gatt

import (
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultName is the advertised local name until Name is set.
const DefaultName = "upy-ble"

// An Option configures a Peripheral.
type Option func(*Peripheral) Option

// Option sets the options specified.
// It returns an option to restore the last arg's previous value.
// Options that shape the advertising payload take effect at Build;
// QueueDepth only takes effect when passed to NewPeripheral.
// See http://commandcenter.blogspot.com.au/2014/01/self-referential-functions-and-design.html for more discussion.
func (p *Peripheral) Option(opts ...Option) (prev Option) {
	for _, opt := range opts {
		prev = opt(p)
	}
	return prev
}

// Name sets the advertised local name. It is shortened as needed to fit
// the advertising payload.
func Name(n string) Option {
	return func(p *Peripheral) Option {
		prev := p.name
		p.name = n
		return Name(prev)
	}
}

// Appearance sets the advertised GAP appearance. Zero leaves it out.
func Appearance(a uint16) Option {
	return func(p *Peripheral) Option {
		prev := p.appearance
		p.appearance = a
		return Appearance(prev)
	}
}

// AdvertisedServices sets the service UUIDs listed in the advertising payload.
func AdvertisedServices(uu ...UUID) Option {
	return func(p *Peripheral) Option {
		prev := p.services
		p.services = uu
		return AdvertisedServices(prev...)
	}
}

// ServiceData sets the Service Data field of the advertising payload.
// b starts with the 16-bit service UUID, little-endian.
func ServiceData(b []byte) Option {
	return func(p *Peripheral) Option {
		prev := p.serviceData
		p.serviceData = b
		return ServiceData(prev)
	}
}

// AdvertisingPayload sets a custom advertising payload, used verbatim.
// Name, Appearance, AdvertisedServices and ServiceData are then ignored.
func AdvertisingPayload(b []byte) Option {
	return func(p *Peripheral) Option {
		prev := p.payload
		p.payload = b
		return AdvertisingPayload(prev)
	}
}

// AdvertisingInterval sets the advertising interval.
func AdvertisingInterval(d time.Duration) Option {
	return func(p *Peripheral) Option {
		p.adv.mu.Lock()
		prev := p.adv.interval
		p.adv.interval = d
		p.adv.mu.Unlock()
		return AdvertisingInterval(prev)
	}
}

// AutoAdvertise sets whether the peripheral advertises by itself after
// Build and after a central disconnects. It is on by default.
// AutoAdvertise and AdmissionCap take effect at once on a built
// peripheral: advertising starts if they now allow it.
func AutoAdvertise(on bool) Option {
	return func(p *Peripheral) Option {
		p.adv.mu.Lock()
		prev := p.adv.auto
		p.adv.auto = on
		p.adv.mu.Unlock()
		p.readvertise()
		return AutoAdvertise(prev)
	}
}

// AdmissionCap sets the number of connected centrals up to which the
// peripheral keeps advertising. With the default of 0 it advertises only
// while no central is connected; Unbounded never stops it.
func AdmissionCap(n int) Option {
	return func(p *Peripheral) Option {
		p.adv.mu.Lock()
		prev := p.adv.cap
		p.adv.cap = n
		p.adv.mu.Unlock()
		p.readvertise()
		return AdmissionCap(prev)
	}
}

// QueueDepth sets how many events may wait for dispatch before new ones
// are dropped.
func QueueDepth(n int) Option {
	return func(p *Peripheral) Option {
		prev := p.depth
		p.depth = n
		return QueueDepth(prev)
	}
}

// Logger sets the logger. The default is the logrus standard logger.
func Logger(l logrus.FieldLogger) Option {
	return func(p *Peripheral) Option {
		prev := p.log
		p.log = l
		if p.loop != nil {
			p.loop.log = l
		}
		return Logger(prev)
	}
}

// readvertise starts advertising if a changed option now allows it.
func (p *Peripheral) readvertise() {
	if !p.built.Load() {
		return
	}
	if err := p.adv.reevaluate(); err != nil {
		p.log.WithError(err).Warn("re-advertise failed")
	}
}
