package contracts

// DeviceInfo contains information about a MIDI output device.
type DeviceInfo struct {
	Name         string // Device name.
	Manufacturer string // Device manufacturer.
	EntityName   string // Name of the entity to which the device belongs.
}

// Output is the sink played events are written to.
type Output interface {
	Send(data []byte) error
	Close() error
}

// DeviceOutput is an Output backed by a platform MIDI API with selectable destinations.
type DeviceOutput interface {
	Output
	ListDevices() ([]DeviceInfo, error) // Lists all available MIDI output devices.
	SelectDevice(deviceID int) error    // Opens the output device with the given index.
}
