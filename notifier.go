package gatt

import "errors"

// DefaultNotifyCap is the largest notification that fits the default
// ATT MTU of 23 bytes.
const DefaultNotifyCap = 20

var errNotifierClosed = errors.New("peripheral closed")

// A Notifier sends notifications of one attribute to every connected central.
type Notifier struct {
	p      *Peripheral
	attr   Attr
	maxlen int
}

// Notifier returns a Notifier for a.
func (p *Peripheral) Notifier(a Attr) *Notifier {
	return &Notifier{p: p, attr: a, maxlen: DefaultNotifyCap}
}

// Write notifies data, split into notifications of at most Cap bytes.
// It does not change the local value of the attribute.
func (n *Notifier) Write(data []byte) (int, error) {
	if n.Done() {
		return 0, errNotifierClosed
	}
	var sent int
	for len(data) > 0 {
		chunk := data[:min(len(data), n.maxlen)]
		if err := n.p.Notify(n.attr, chunk); err != nil {
			return sent, err
		}
		sent += len(chunk)
		data = data[len(chunk):]
	}
	return sent, nil
}

// Cap returns the maximum number of bytes that may be sent in a single notification.
func (n *Notifier) Cap() int {
	return n.maxlen
}

// Done reports whether the peripheral has been closed.
func (n *Notifier) Done() bool {
	return n.p.closed.Load()
}
