package gatt

import "errors"

var (
	// ErrNotBuilt is returned by calls made before Build has registered
	// the services and assembled the advertising payload.
	ErrNotBuilt = errors.New("peripheral is not built")

	// ErrAdmission is returned by Advertise when the number of connected
	// centrals already exceeds the admission cap.
	ErrAdmission = errors.New("connection count exceeds admission cap")

	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("peripheral is closed")
)
