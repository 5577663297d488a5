package environment

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mklimuk/sensorwatch"
)

const hih6021Address = 0x27

var hihDivider = float32(1<<14 - 2)

var ErrStaleData = errors.New("stale data")
var ErrCommandMode = errors.New("device in command mode")

// HIH6021 represents Honeywell HumidIcon Digital Humidity/Temperature sensor
type HIH6021 struct {
	mx        sync.Mutex
	transport sensorwatch.I2CBus
}

var _ TemperatureAndHumiditySensor = &HIH6021{}

func NewHIH6021(trans sensorwatch.I2CBus) *HIH6021 {
	return &HIH6021{transport: trans}
}

func (sensor *HIH6021) GetTemperature(ctx context.Context) (float32, error) {
	t, _, err := sensor.GetTempAndHum(ctx)
	return t, err
}

func (sensor *HIH6021) GetHumidity(ctx context.Context) (float32, error) {
	_, h, err := sensor.GetTempAndHum(ctx)
	return h, err
}

func (sensor *HIH6021) GetTempAndHum(ctx context.Context) (float32, float32, error) {
	sensor.mx.Lock()
	defer sensor.mx.Unlock()
	err := sensor.transport.WriteToAddr(ctx, hih6021Address, []byte{})
	if err != nil {
		return 0, 0, fmt.Errorf("hih6021: could not request measurement: %w", err)
	}
	// measurement cycle takes typically 36.65ms
	if err := sleep(ctx, 50*time.Millisecond); err != nil {
		return 0, 0, err
	}
	resp := make([]byte, 4)
	err = sensor.transport.ReadFromAddr(ctx, hih6021Address, resp)
	if err != nil {
		return 0, 0, fmt.Errorf("hih6021: could not read measurement: %w", err)
	}
	switch {
	case resp[0]&0x80 > 0:
		return 0, 0, fmt.Errorf("hih6021: %w", ErrCommandMode)
	case resp[0]&0x40 > 0:
		// already fetched, or fetched before the first conversion completed
		return 0, 0, fmt.Errorf("hih6021: %w", ErrStaleData)
	}
	return convertTemperature(resp[2:4]), convertHumidity(resp[0:2]), nil
}

func convertHumidity(resp []byte) float32 {
	hum := float32(binary.BigEndian.Uint16(resp)) / hihDivider * 100
	if hum > 100.00 {
		return 100.00
	}
	return hum
}

func convertTemperature(resp []byte) float32 {
	shift := resp[0] & 0x03
	shift <<= 6
	lsb := (resp[1] >> 2) | shift
	msb := resp[0] >> 2
	return float32(binary.BigEndian.Uint16([]byte{msb, lsb}))/hihDivider*165 - 40
}
