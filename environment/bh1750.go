package environment

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/mklimuk/sensorwatch"
)

const BH1750AddrHigh = 0b1011100
const BH1750AddrLow = 0b0100011

const opCodeSingleLowResolution = 0b00100011

// low resolution conversion takes 16ms typically, 24ms at most
const bh1750ConversionTime = 25 * time.Millisecond

type BH1750 struct {
	mx        sync.Mutex
	transport sensorwatch.I2CBus
	addr      byte
	buf       []byte
}

var _ LightSensor = &BH1750{}

func NewBH1750(transport sensorwatch.I2CBus, addr byte) *BH1750 {
	return &BH1750{
		addr:      addr,
		transport: transport,
		buf:       make([]byte, 2),
	}
}

// GetLux triggers a single low resolution measurement.
func (sensor *BH1750) GetLux(ctx context.Context) (int, error) {
	sensor.mx.Lock()
	defer sensor.mx.Unlock()
	err := sensor.transport.WriteToAddr(ctx, sensor.addr, []byte{opCodeSingleLowResolution})
	if err != nil {
		return 0, fmt.Errorf("bh1750: could not write command: %w", err)
	}
	if err := sleep(ctx, bh1750ConversionTime); err != nil {
		return 0, err
	}
	err = sensor.transport.ReadFromAddr(ctx, sensor.addr, sensor.buf)
	if err != nil {
		return 0, fmt.Errorf("bh1750: could not read data: %w", err)
	}
	return int(float32(binary.BigEndian.Uint16(sensor.buf)) / 1.2), nil
}
