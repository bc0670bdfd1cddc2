package gatt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultAdvertisingInterval is used until an interval is configured.
const DefaultAdvertisingInterval = 500 * time.Millisecond

// Unbounded is an admission cap that never stops advertising.
const Unbounded = -1

// AdvertisingState is the state of the advertiser.
type AdvertisingState int

const (
	Idle AdvertisingState = iota
	Advertising
)

func (s AdvertisingState) String() string {
	if s == Advertising {
		return "Advertising"
	}
	return "Idle"
}

// advertiser owns the advertising state. mu guards the fields below it
// and is never held across a radio call. Connection changes go through
// mu too, so the connection count never changes between an admission
// check and the state change it leads to. Lock order is mu, then the
// registry's lock.
type advertiser struct {
	radio Radio
	conns *connRegistry
	kickc chan struct{}

	mu       sync.Mutex
	state    AdvertisingState
	payload  []byte
	interval time.Duration
	auto     bool
	cap      int
	closed   bool
}

func newAdvertiser(r Radio, conns *connRegistry) *advertiser {
	return &advertiser{
		radio:    r,
		conns:    conns,
		kickc:    make(chan struct{}, 1),
		interval: DefaultAdvertisingInterval,
		auto:     true,
	}
}

// admits reports whether advertising is allowed with n connections.
func (a *advertiser) admits(n int) bool {
	return a.cap == Unbounded || n <= a.cap
}

func (a *advertiser) setPayload(b []byte) {
	a.mu.Lock()
	a.payload = b
	a.mu.Unlock()
}

func (a *advertiser) State() AdvertisingState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// advertise starts advertising on request of the application.
func (a *advertiser) advertise(interval time.Duration, auto bool) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if a.payload == nil {
		a.mu.Unlock()
		return ErrNotBuilt
	}
	a.auto = auto
	if interval > 0 {
		a.interval = interval
	}
	if a.state == Advertising {
		a.mu.Unlock()
		return nil
	}
	if n := a.conns.count(); !a.admits(n) {
		a.mu.Unlock()
		return fmt.Errorf("%w: %d connected, cap %d", ErrAdmission, n, a.cap)
	}
	return a.startLocked()
}

// reevaluate starts advertising if auto-advertising is on and the
// admission cap allows it. A refusal is not an error.
func (a *advertiser) reevaluate() error {
	a.mu.Lock()
	if a.closed || !a.auto || a.payload == nil || a.state == Advertising || !a.admits(a.conns.count()) {
		a.mu.Unlock()
		return nil
	}
	if err := a.startLocked(); err != nil && !errors.Is(err, ErrAdmission) && !errors.Is(err, ErrClosed) {
		return err
	}
	return nil
}

// startLocked marks the state Advertising, releases mu and starts the
// radio. The state is rolled back if the radio refuses. A central that
// connected, or a Close, while the radio was starting stops it again.
func (a *advertiser) startLocked() error {
	a.state = Advertising
	payload, interval := a.payload, a.interval
	a.mu.Unlock()

	if err := a.radio.Advertise(interval, payload); err != nil {
		a.mu.Lock()
		a.state = Idle
		a.mu.Unlock()
		return fmt.Errorf("advertise: %w", err)
	}

	a.mu.Lock()
	n := a.conns.count()
	if !a.closed && a.admits(n) {
		a.mu.Unlock()
		return nil
	}
	closed, limit := a.closed, a.cap
	a.state = Idle
	a.mu.Unlock()
	if err := a.radio.StopAdvertising(); err != nil {
		return fmt.Errorf("stop advertising: %w", err)
	}
	if closed {
		return ErrClosed
	}
	return fmt.Errorf("%w: %d connected, cap %d", ErrAdmission, n, limit)
}

// connected adds h to the registry and records that the radio stopped
// advertising because a central connected. It runs in the radio's event
// context.
func (a *advertiser) connected(h ConnHandle) {
	a.mu.Lock()
	a.conns.add(h)
	a.state = Idle
	a.mu.Unlock()
}

// disconnected removes h from the registry. It reports whether h was
// connected.
func (a *advertiser) disconnected(h ConnHandle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conns.remove(h)
}

// kick asks for a re-evaluation. Kicks coalesce while one is pending.
func (a *advertiser) kick() {
	select {
	case a.kickc <- struct{}{}:
	default:
	}
}

// stop stops advertising and turns auto-advertising off.
func (a *advertiser) stop() error {
	a.mu.Lock()
	was := a.state
	a.state = Idle
	a.auto = false
	a.mu.Unlock()
	if was != Advertising {
		return nil
	}
	if err := a.radio.StopAdvertising(); err != nil {
		return fmt.Errorf("stop advertising: %w", err)
	}
	return nil
}

func (a *advertiser) close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return a.stop()
}

// run re-evaluates advertising on every kick until ctx is done.
func (a *advertiser) run(ctx context.Context, log logrus.FieldLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.kickc:
			if err := a.reevaluate(); err != nil {
				log.WithError(err).Warn("re-advertise failed")
			}
		}
	}
}
