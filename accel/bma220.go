// Package accel holds accelerometers used as motion detectors.
package accel

import (
	"context"
	"fmt"
	"sync"

	"github.com/mklimuk/sensorwatch"
)

const (
	regRange         = 0x22
	regLatch         = 0x1C
	regSlopeSettings = 0x12
	regSlopeDet      = 0x1A
	regWatchdog      = 0x2E
	regInterrupts    = 0x18
)

const bma220Address = 0x0A

// BMA220 represents Bosh BMA220 accelerometer
type BMA220 struct {
	mx        sync.Mutex
	transport sensorwatch.I2CBus
}

func NewBMA220(trans sensorwatch.I2CBus) *BMA220 {
	return &BMA220{transport: trans}
}

func (b *BMA220) write(ctx context.Context, what string, reg, value byte) error {
	if err := b.transport.WriteToAddr(ctx, bma220Address, []byte{reg, value}); err != nil {
		return fmt.Errorf("bma220: could not %s: %w", what, err)
	}
	return nil
}

/*
InitMotionDetection enables slope (any-motion) detection on all axes with a
permanently latched interrupt.

en_slope_x/y/z (0x1A.5..3) enable slope detection per axis
slope_th (0x12[5:2]) threshold, 1 LSB of acc_data
slope_dur (0x12[1:0]) consecutive points above threshold ("00" = 1 ... "11" = 4)
slope_filt (0x12.6) filtered or unfiltered data
*/
func (b *BMA220) InitMotionDetection(ctx context.Context) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	steps := []struct {
		what       string
		reg, value byte
	}{
		{"set detection sensitivity", regRange, 0x03},
		// lat_int[2:0] = 111
		{"set interrupt latch", regLatch, 0b01110000},
		{"enable slope detection", regSlopeDet, 0b00111000},
		{"set slope detection settings", regSlopeSettings, 0x45},
		{"set watchdog settings", regWatchdog, 0x06},
	}
	for _, s := range steps {
		if err := b.write(ctx, s.what, s.reg, s.value); err != nil {
			return err
		}
	}
	return nil
}

// CheckMotionInterrupt reports whether the slope interrupt is latched.
func (b *BMA220) CheckMotionInterrupt(ctx context.Context) (bool, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	err := b.transport.WriteToAddr(ctx, bma220Address, []byte{regInterrupts})
	if err != nil {
		return false, fmt.Errorf("bma220: could not set register pointer: %w", err)
	}
	buf := []byte{0x00}
	err = b.transport.ReadFromAddr(ctx, bma220Address, buf)
	if err != nil {
		return false, fmt.Errorf("bma220: could not read register content: %w", err)
	}
	// slope detection is on bit 0
	return buf[0]&0x01 != 0, nil
}

// ResetMotionInterrupt clears the latched interrupt.
func (b *BMA220) ResetMotionInterrupt(ctx context.Context) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.write(ctx, "reset interrupt", regLatch, 0b11110000)
}

// MotionSource reports whether motion was detected since the previous
// sample. A latched interrupt is cleared after it is read.
func MotionSource(b *BMA220) sensorwatch.Source[bool] {
	return sensorwatch.SourceFunc[bool](func(ctx context.Context) (bool, error) {
		moved, err := b.CheckMotionInterrupt(ctx)
		if err != nil || !moved {
			return false, err
		}
		return true, b.ResetMotionInterrupt(ctx)
	})
}
