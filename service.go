package gatt

// A Service is a BLE service.
// Calls to AddCharacteristic must occur before the
// service is registered by a peripheral.
type Service struct {
	uuid  UUID
	chars []*Characteristic
}

// NewService creates and initialize a new Service using specified UUID.
func NewService(u UUID) *Service {
	return &Service{uuid: u}
}

// AddCharacteristic adds a characteristic with the given properties to a service.
// AddCharacteristic panics if the service already contains
// another characteristic with the same UUID.
func (s *Service) AddCharacteristic(u UUID, props Property) *Characteristic {
	for _, char := range s.chars {
		if char.uuid.Equal(u) {
			panic("service already contains a characteristic with uuid " + u.String())
		}
	}

	char := &Characteristic{
		service: s,
		uuid:    u,
		props:   props,
	}
	s.chars = append(s.chars, char)
	return char
}

// UUID returns the service's UUID.
func (s *Service) UUID() UUID {
	return s.uuid
}

// Characteristics returns the characteristics of the service,
// in the order they were added.
func (s *Service) Characteristics() []*Characteristic {
	return s.chars
}
