package environment

import (
	"context"
	"fmt"
	"sync"

	"github.com/mklimuk/sensorwatch"
)

const tc74DefaultAddress = 0x4D
const tc74TempRegister = 0x00
const tc74ConfigRegister = 0x01
const tc74DataReady = 0x40

// TC74 represents a Microchip TC74 Digital Temperature Sensor
// See: https://ww1.microchip.com/downloads/en/DeviceDoc/21462D.pdf
type TC74 struct {
	mx        sync.Mutex
	transport sensorwatch.I2CBus
	address   byte
}

type TC74Config struct {
	Address byte
}

type TC74ConfigOption func(*TC74Config)

func WithAddress(address byte) TC74ConfigOption {
	return func(c *TC74Config) {
		if address != 0 {
			c.Address = address
		}
	}
}

// NewTC74 creates a TC74 on trans. The default address 0x4D is used unless
// WithAddress says otherwise.
func NewTC74(trans sensorwatch.I2CBus, opts ...TC74ConfigOption) *TC74 {
	config := &TC74Config{
		Address: tc74DefaultAddress,
	}
	for _, opt := range opts {
		opt(config)
	}
	return &TC74{transport: trans, address: config.Address}
}

func (sensor *TC74) readRegister(ctx context.Context, reg byte) (byte, error) {
	err := sensor.transport.WriteToAddr(ctx, sensor.address, []byte{reg})
	if err != nil {
		return 0, fmt.Errorf("tc74: could not select register %#x: %w", reg, err)
	}
	resp := make([]byte, 1)
	err = sensor.transport.ReadFromAddr(ctx, sensor.address, resp)
	if err != nil {
		return 0, fmt.Errorf("tc74: could not read register %#x: %w", reg, err)
	}
	return resp[0], nil
}

// GetConfig returns the content of the configuration register.
func (sensor *TC74) GetConfig(ctx context.Context) (byte, error) {
	sensor.mx.Lock()
	defer sensor.mx.Unlock()
	return sensor.readRegister(ctx, tc74ConfigRegister)
}

// GetTemperature returns the temperature in Celsius. ErrNotReady is
// returned while the first conversion after power-up is still running.
func (sensor *TC74) GetTemperature(ctx context.Context) (float32, error) {
	sensor.mx.Lock()
	defer sensor.mx.Unlock()
	config, err := sensor.readRegister(ctx, tc74ConfigRegister)
	if err != nil {
		return 0, err
	}
	if config&tc74DataReady == 0 {
		return 0, fmt.Errorf("tc74: %w", ErrNotReady)
	}
	raw, err := sensor.readRegister(ctx, tc74TempRegister)
	if err != nil {
		return 0, err
	}
	// two's complement, 1 °C per LSB
	return float32(int8(raw)), nil
}
