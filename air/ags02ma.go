package air

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mklimuk/sensorwatch"
)

// AGS02MA default 7-bit I2C address is 0x1A.
// Datasheet also mentions write/read instructions 0x34/0x35 which are the
// 8-bit bus addresses (0x1A<<1 | 0 for write, | 1 for read) used on the wire.
const ags02maAddress = 0x1A

const (
	regTVOC       byte = 0x00
	regCalibrate  byte = 0x01
	regVersion    byte = 0x11
	regResistance byte = 0x20
)

// Status byte (Data1) bit 0 is set while the sensor pre-heats or has no
// fresh data. Bits 3..1 hold the data type, 000 being TVOC in ppb.
const statusBitRDY = 0x01

var (
	ErrNotReady    = errors.New("ags02ma: data not ready or sensor in pre-heat stage")
	ErrCRCMismatch = errors.New("ags02ma: crc mismatch")
)

const (
	TVOCModeDirectRead    byte = 0x00
	TVOCModeRegisterWrite byte = 0x01
)

type AGS02MAOpts struct {
	ConfigureDelay time.Duration
	ReadDelay      time.Duration
	TxDelay        time.Duration
	TVOCMode       byte
}

type AGS02MAOpt func(*AGS02MAOpts)

func WithConfigureDelay(delay time.Duration) AGS02MAOpt {
	return func(o *AGS02MAOpts) {
		o.ConfigureDelay = delay
	}
}

func WithReadDelay(delay time.Duration) AGS02MAOpt {
	return func(o *AGS02MAOpts) {
		o.ReadDelay = delay
	}
}

func WithTxDelay(delay time.Duration) AGS02MAOpt {
	return func(o *AGS02MAOpts) {
		o.TxDelay = delay
	}
}

func WithTVOCMode(mode byte) AGS02MAOpt {
	return func(o *AGS02MAOpts) {
		o.TVOCMode = mode
	}
}

// AGS02MA represents Aosong AGS02MA TVOC sensor.
// Typical usage:
//
//	s := NewAGS02MA(bus)
//	v, err := s.GetTVOC(ctx)
//
// Value is returned in parts-per-billion (ppb) as integer.
// Note: The sensor requires a slow I2C clock (<= 30 kHz). Ensure adapter supports it.
//
// The datasheet asks for a pause after reads and configuration. The pause
// does not block the caller; the next operation waits for whatever is left
// of it. Operations are serialized.
type AGS02MA struct {
	mx      sync.Mutex
	readyAt time.Time

	config AGS02MAOpts

	transport sensorwatch.I2CBus
	addr      byte
	buf       []byte
}

var _ AirQualitySensor = &AGS02MA{}

func NewAGS02MA(transport sensorwatch.I2CBus, opts ...AGS02MAOpt) *AGS02MA {
	config := AGS02MAOpts{
		ConfigureDelay: 2 * time.Second,
		ReadDelay:      1500 * time.Millisecond,
		TxDelay:        100 * time.Millisecond,
		TVOCMode:       TVOCModeRegisterWrite,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &AGS02MA{
		config:    config,
		transport: transport,
		addr:      ags02maAddress,
		buf:       make([]byte, 5),
	}
}

// waitReady blocks until the pause requested by the previous operation is
// over. Must be called with mx held.
func (s *AGS02MA) waitReady(ctx context.Context) error {
	remaining := time.Until(s.readyAt)
	if remaining <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close waits for a pending pause to end.
func (s *AGS02MA) Close(ctx context.Context) {
	s.mx.Lock()
	defer s.mx.Unlock()
	_ = s.waitReady(ctx)
}

// transact runs one command/response exchange. When reg is nil the register
// write is skipped (master direct read). The response CRC is verified.
func (s *AGS02MA) transact(ctx context.Context, reg *byte, pause time.Duration) error {
	if err := s.waitReady(ctx); err != nil {
		return err
	}
	if reg != nil {
		if err := s.transport.WriteToAddr(ctx, s.addr, []byte{*reg}); err != nil {
			return fmt.Errorf("ags02ma: write reg %#02x failed: %w", *reg, err)
		}
		timer := time.NewTimer(s.config.TxDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	if err := s.transport.ReadFromAddr(ctx, s.addr, s.buf); err != nil {
		return fmt.Errorf("ags02ma: read failed: %w", err)
	}
	if crc := checkCRC(s.buf[:4]); crc != s.buf[4] {
		return fmt.Errorf("%w: expected %#x, got %#x", ErrCRCMismatch, s.buf[4], crc)
	}
	if pause > 0 {
		s.readyAt = time.Now().Add(pause)
	}
	return nil
}

func (s *AGS02MA) Configure(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.waitReady(ctx); err != nil {
		return err
	}
	err := s.transport.WriteToAddr(ctx, s.addr, []byte{regTVOC, 0x00, 0xFF, 0x00, 0xFF, 0x30})
	if err != nil {
		return fmt.Errorf("ags02ma: configuration write failed: %w", err)
	}
	s.readyAt = time.Now().Add(s.config.ConfigureDelay)
	return nil
}

// GetTVOC returns the TVOC concentration in ppb. Depending on TVOCMode the
// register is written first or the data is read directly.
func (s *AGS02MA) GetTVOC(ctx context.Context) (uint32, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	var reg *byte
	if s.config.TVOCMode != TVOCModeDirectRead {
		r := regTVOC
		reg = &r
	}
	if err := s.transact(ctx, reg, 0); err != nil {
		return 0, err
	}
	if s.buf[0]&statusBitRDY != 0 {
		return 0, ErrNotReady
	}
	ppb := (uint32(s.buf[1]) << 16) | (uint32(s.buf[2]) << 8) | uint32(s.buf[3])
	s.readyAt = time.Now().Add(s.config.ReadDelay)
	return ppb, nil
}

func (s *AGS02MA) ReadVersion(ctx context.Context) (int, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	reg := regVersion
	if err := s.transact(ctx, &reg, 0); err != nil {
		return 0, err
	}
	return int(s.buf[3]), nil
}

// ReadResistance returns the raw sensing element resistance in units of
// 100 ohm, as reported in the low byte.
func (s *AGS02MA) ReadResistance(ctx context.Context) (int, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	reg := regResistance
	if err := s.transact(ctx, &reg, s.config.ReadDelay); err != nil {
		return 0, err
	}
	return int(s.buf[3]), nil
}

func (s *AGS02MA) Calibrate(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	reg := regCalibrate
	return s.transact(ctx, &reg, s.config.ReadDelay)
}

// checkCRC calculates CRC8 checksum with initial value 0xFF and polynomial 0x31.
// This implements the algorithm from AGS02MA datasheet (x8 + x5 + x4 + 1).
func checkCRC(data []byte) byte {
	crc := byte(0xFF)
	for _, b := range data {
		crc ^= b
		for range 8 {
			if crc&0x80 != 0 {
				crc = (crc << 1) ^ 0x31
			} else {
				crc = crc << 1
			}
		}
	}
	return crc
}
