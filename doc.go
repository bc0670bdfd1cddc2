// Package gatt provides the core of a Bluetooth Low Energy peripheral:
// a GATT server that tracks connected centrals, advertises, and hands
// radio events to application code.
//
// # STATUS
//
// This package is a work in progress. The API will change.
//
// The radio itself is behind the Radio interface. Package sim provides an
// in-memory radio for tests, package adapter drives tinygo.org/x/bluetooth.
//
// # USAGE
//
// Peripherals are constructed by creating services and characteristics,
// building them on a radio, registering handlers and serving:
//
//	svc := gatt.NewService(gatt.UUID16(0x181A))
//	svc.AddCharacteristic(gatt.UUID16(0x2A6E), gatt.CharRead|gatt.CharNotify)
//
//	p := gatt.NewPeripheral(radio,
//		gatt.Name("upy-temp"),
//		gatt.Appearance(gatt.AppearanceGenericThermometer),
//		gatt.AdvertisedServices(gatt.UUID16(0x181A)),
//	)
//	ht, err := p.Build(svc)
//	if err != nil {
//		log.Fatal(err)
//	}
//	temp, _ := ht.Value(0, 0)
//
//	p.Irq(gatt.CentralConnected(gatt.Direct(func(r gatt.Request) {
//		log.Println("connected:", r.Conn)
//	})))
//	go p.Serve(ctx)
//
//	p.Write(temp, []byte{0x34, 0x08}, true)
//
// # EVENTS
//
// The radio raises connect, disconnect and write events from a context
// that must not block. The peripheral updates its connection set and
// advertising state right away and queues the event; Serve then runs the
// registered Callback. Direct and BoundDirect callbacks run to completion
// on the loop. SpawnTask callbacks return a Task that runs on its own
// goroutine, taking turns with the loop at Await and Sleep.
//
// After a central disconnects, and with AutoAdvertise on, advertising
// restarts as soon as the AdmissionCap allows, whether or not the
// disconnect handler has run.
package gatt
