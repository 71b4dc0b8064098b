// Package bledb maps well-known Bluetooth SIG identifiers to their
// assigned names for display purposes. The table covers the common
// services and characteristics a scanner is likely to meet; unknown
// identifiers resolve to an empty string.
package bledb

import "strings"

var serviceNames = map[string]string{
	"1800": "Generic Access",
	"1801": "Generic Attribute",
	"180a": "Device Information",
	"180d": "Heart Rate",
	"180f": "Battery Service",
	"1810": "Blood Pressure",
	"1812": "Human Interface Device",
	"1816": "Cycling Speed and Cadence",
	"1818": "Cycling Power",
	"1819": "Location and Navigation",
	"181a": "Environmental Sensing",
	"181c": "User Data",
	"6e400001b5a3f393e0a9e50e24dcca9e": "Nordic UART Service",
}

var characteristicNames = map[string]string{
	"2a00": "Device Name",
	"2a01": "Appearance",
	"2a05": "Service Changed",
	"2a19": "Battery Level",
	"2a23": "System ID",
	"2a24": "Model Number String",
	"2a25": "Serial Number String",
	"2a26": "Firmware Revision String",
	"2a29": "Manufacturer Name String",
	"2a37": "Heart Rate Measurement",
	"2a38": "Body Sensor Location",
	"2a63": "Cycling Power Measurement",
	"2a6e": "Temperature",
	"2a6f": "Humidity",
	"6e400002b5a3f393e0a9e50e24dcca9e": "UART RX",
	"6e400003b5a3f393e0a9e50e24dcca9e": "UART TX",
}

// normalize folds a UUID to the lookup key form: lowercase, no dashes,
// with the 16-bit alias extracted from the Bluetooth base UUID when
// applicable.
func normalize(uuid string) string {
	u := strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, "00001000800000805f9b34fb") {
		return u[4:8]
	}
	return u
}

// LookupService returns the assigned name for a service UUID, or "".
func LookupService(uuid string) string {
	return serviceNames[normalize(uuid)]
}

// LookupCharacteristic returns the assigned name for a characteristic
// UUID, or "".
func LookupCharacteristic(uuid string) string {
	return characteristicNames[normalize(uuid)]
}
