package i2c

import (
	"github.com/juju/errors"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"
)

// OpenPeriph initializes host drivers and opens named bus ("" = first available).
func OpenPeriph(name string) (BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Annotate(err, "periph/init")
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Annotatef(err, "I2C Open bus=%s", name)
	}
	return bus, nil
}

// Open picks transport by driver name: "periph" (default) or "raw".
func Open(driver, name string, busNo byte) (BusCloser, error) {
	switch driver {
	case "", "periph":
		return OpenPeriph(name)
	case "raw":
		return NewRawBus(busNo), nil
	default:
		return nil, errors.NotSupportedf("i2c driver=%s", driver)
	}
}
