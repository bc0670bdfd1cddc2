package gatt

// This file includes constants from the BLE spec.

var (
	AttrGAPUUID  = UUID16(0x1800)
	AttrGATTUUID = UUID16(0x1801)

	AttrPrimaryServiceUUID   = UUID16(0x2800)
	AttrSecondaryServiceUUID = UUID16(0x2801)
	AttrIncludeUUID          = UUID16(0x2802)
	AttrCharacteristicUUID   = UUID16(0x2803)

	AttrClientCharacteristicConfigUUID = UUID16(0x2902)
	AttrServerCharacteristicConfigUUID = UUID16(0x2903)

	AttrDeviceNameUUID = UUID16(0x2A00)
	AttrAppearanceUUID = UUID16(0x2A01)
)

// Appearance values, from
// https://www.bluetooth.com/wp-content/uploads/Sitecore-Media-Library/Gatt/Xml/Characteristics/org.bluetooth.characteristic.gap.appearance.xml
const (
	AppearanceUnknown            uint16 = 0
	AppearanceGenericPhone       uint16 = 64
	AppearanceGenericComputer    uint16 = 128
	AppearanceGenericWatch       uint16 = 192
	AppearanceGenericThermometer uint16 = 768
	AppearanceGenericSensor      uint16 = 1344
)
