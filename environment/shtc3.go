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

const shtc3Address = 0x70

// Commands are sent big endian.
const (
	shtc3CmdWake  uint16 = 0x3517
	shtc3CmdSleep uint16 = 0xB098
	// normal power, no clock stretching, temperature first
	shtc3CmdMeasure uint16 = 0x7866
)

const (
	shtc3WakeTime    = time.Millisecond
	shtc3MeasureTime = 15 * time.Millisecond
)

var ErrCRCMismatch = errors.New("crc mismatch")

// SHTC3 represents a Sensirion SHTC3 temperature and humidity sensor. Every
// call performs a full wake, measure, sleep cycle; concurrent callers are
// serialized.
type SHTC3 struct {
	mx        sync.Mutex
	transport sensorwatch.I2CBus
}

var _ TemperatureAndHumiditySensor = &SHTC3{}

func NewSHTC3(trans sensorwatch.I2CBus) *SHTC3 {
	return &SHTC3{transport: trans}
}

func (s *SHTC3) GetTemperature(ctx context.Context) (float32, error) {
	t, _, err := s.GetTempAndHum(ctx)
	return t, err
}

func (s *SHTC3) GetHumidity(ctx context.Context) (float32, error) {
	_, h, err := s.GetTempAndHum(ctx)
	return h, err
}

// GetTempAndHum returns temperature in Celsius and relative humidity in %RH
// from a single measurement.
func (s *SHTC3) GetTempAndHum(ctx context.Context) (float32, float32, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.writeCmd(ctx, shtc3CmdWake); err != nil {
		return 0, 0, fmt.Errorf("shtc3: wake failed: %w", err)
	}
	if err := sleep(ctx, shtc3WakeTime); err != nil {
		return 0, 0, err
	}
	if err := s.writeCmd(ctx, shtc3CmdMeasure); err != nil {
		return 0, 0, fmt.Errorf("shtc3: measure command failed: %w", err)
	}
	if err := sleep(ctx, shtc3MeasureTime); err != nil {
		return 0, 0, err
	}
	// T msb, T lsb, crc, RH msb, RH lsb, crc
	buf := make([]byte, 6)
	if err := s.transport.ReadFromAddr(ctx, shtc3Address, buf); err != nil {
		return 0, 0, fmt.Errorf("shtc3: read failed: %w", err)
	}
	if sensirionCRC8(buf[0:2]) != buf[2] {
		return 0, 0, fmt.Errorf("shtc3: temperature %w", ErrCRCMismatch)
	}
	if sensirionCRC8(buf[3:5]) != buf[5] {
		return 0, 0, fmt.Errorf("shtc3: humidity %w", ErrCRCMismatch)
	}
	temp := -45.0 + 175.0*float32(binary.BigEndian.Uint16(buf[0:2]))/65535.0
	hum := 100.0 * float32(binary.BigEndian.Uint16(buf[3:5])) / 65535.0

	if err := s.writeCmd(ctx, shtc3CmdSleep); err != nil {
		return 0, 0, fmt.Errorf("shtc3: sleep failed: %w", err)
	}
	return temp, hum, nil
}

func (s *SHTC3) writeCmd(ctx context.Context, cmd uint16) error {
	var out [2]byte
	binary.BigEndian.PutUint16(out[:], cmd)
	return s.transport.WriteToAddr(ctx, shtc3Address, out[:])
}

// sensirionCRC8 uses polynomial 0x31 with init 0xFF.
func sensirionCRC8(data []byte) byte {
	crc := byte(0xFF)
	for _, b := range data {
		crc ^= b
		for range 8 {
			if crc&0x80 != 0 {
				crc = (crc << 1) ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
