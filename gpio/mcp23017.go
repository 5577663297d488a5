// Package gpio holds I/O expanders whose input ports can be watched like any
// other sensor.
package gpio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mklimuk/sensorwatch"
)

type register int

const DefaultMCP23017Address = 0x21

const (
	IODIRA register = iota
	IOPOLA
	GPINTENA
	DEFVALA
	INTCONA
	IOCONA
	GPPUA
	INTFA
	INTCAPA
	GPIOA
	IODIRB
	IOPOLB
	GPINTENB
	DEFVALB
	INTCONB
	IOCONB
	GPPUB
	INTFB
	INTCAPB
	GPIOB
	OLATB
)

// BankAddr maps registers to addresses for IOCON.BANK = 0 and 1.
var BankAddr = [2]map[register]byte{
	{
		IODIRA: 0x00, IOPOLA: 0x02, GPINTENA: 0x04, DEFVALA: 0x06, INTCONA: 0x08,
		IOCONA: 0x0A, GPPUA: 0x0C, INTFA: 0x0E, INTCAPA: 0x10, GPIOA: 0x12,
		IODIRB: 0x01, IOPOLB: 0x03, GPINTENB: 0x05, DEFVALB: 0x07, INTCONB: 0x09,
		IOCONB: 0x0B, GPPUB: 0x0D, INTFB: 0x0F, INTCAPB: 0x11, GPIOB: 0x13,
		OLATB: 0x15,
	},
	{
		IODIRA: 0x00, IOPOLA: 0x01, GPINTENA: 0x02, DEFVALA: 0x03, INTCONA: 0x04,
		IOCONA: 0x05, GPPUA: 0x06, INTFA: 0x07, INTCAPA: 0x08, GPIOA: 0x09,
		IODIRB: 0x10, IOPOLB: 0x11, GPINTENB: 0x12, DEFVALB: 0x13, INTCONB: 0x14,
		IOCONB: 0x15, GPPUB: 0x16, INTFB: 0x17, INTCAPB: 0x18, GPIOB: 0x19,
		OLATB: 0x1A,
	},
}

// Port selects one of the two 8 bit ports.
type Port int

const (
	PortA Port = iota
	PortB
)

func (p Port) String() string {
	if p == PortB {
		return "B"
	}
	return "A"
}

func (p Port) pick(a, b register) register {
	if p == PortB {
		return b
	}
	return a
}

type MCP23017Opt func(*MCP23017)

// WithRetryLimit sets how many times a transaction is attempted when the
// bus reports ErrBusBusy. Values below 1 are ignored.
func WithRetryLimit(limit int) MCP23017Opt {
	return func(m *MCP23017) {
		if limit > 0 {
			m.retryLimit = limit
		}
	}
}

// MCP23017 is a 16 bit I2C I/O expander. To read inputs set IODIR to 0xFF,
// optionally enable pull-ups and read the GPIO register of the port.
type MCP23017 struct {
	mx         sync.Mutex
	transport  sensorwatch.I2CBus
	bank       int
	address    byte
	retryLimit int
}

func NewMCP23017(bus sensorwatch.I2CBus, address byte, opts ...MCP23017Opt) *MCP23017 {
	m := &MCP23017{retryLimit: 1, transport: bus, address: address}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// retry runs op until it succeeds, fails with an error other than
// ErrBusBusy or the retry limit is reached. The bus is released after every
// busy attempt.
func (m *MCP23017) retry(ctx context.Context, what string, op func() error) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	var err error
	for i := m.retryLimit; i > 0; i-- {
		err = op()
		if err == nil {
			return nil
		}
		if !errors.Is(err, sensorwatch.ErrBusBusy) {
			return fmt.Errorf("mcp23017: could not %s: %w", what, err)
		}
		_ = m.transport.Release(ctx)
	}
	return fmt.Errorf("mcp23017: could not %s (retry limit reached): %w", what, err)
}

func (m *MCP23017) writeRegister(ctx context.Context, what string, reg register, value byte) error {
	return m.retry(ctx, what, func() error {
		return m.transport.WriteToAddr(ctx, m.address, []byte{BankAddr[m.bank][reg], value})
	})
}

func (m *MCP23017) readRegister(ctx context.Context, what string, reg register) (byte, error) {
	buf := make([]byte, 1)
	err := m.retry(ctx, what, func() error {
		err := m.transport.WriteToAddr(ctx, m.address, []byte{BankAddr[m.bank][reg]})
		if err != nil {
			return err
		}
		return m.transport.ReadFromAddr(ctx, m.address, buf)
	})
	return buf[0], err
}

// Init sets the IODIR register of port p. A set bit makes the pin an input.
func (m *MCP23017) Init(ctx context.Context, p Port, inout byte) error {
	return m.writeRegister(ctx, "initialize gpio "+p.String()+" set", p.pick(IODIRA, IODIRB), inout)
}

// PullUp enables pull-up resistors on port p.
func (m *MCP23017) PullUp(ctx context.Context, p Port, settings byte) error {
	return m.writeRegister(ctx, "set pull-up on gpio "+p.String()+" set", p.pick(GPPUA, GPPUB), settings)
}

// ReadPort reads the GPIO register of port p.
func (m *MCP23017) ReadPort(ctx context.Context, p Port) (byte, error) {
	return m.readRegister(ctx, "read gpio "+p.String()+" set", p.pick(GPIOA, GPIOB))
}

// ReadSettings reads the IOCON register seen from port p.
func (m *MCP23017) ReadSettings(ctx context.Context, p Port) (byte, error) {
	return m.readRegister(ctx, "read settings of gpio "+p.String()+" set", p.pick(IOCONA, IOCONB))
}

// WriteSettings writes the IOCON register seen from port p.
func (m *MCP23017) WriteSettings(ctx context.Context, p Port, settings byte) error {
	return m.writeRegister(ctx, "write settings on gpio "+p.String()+" set", p.pick(IOCONA, IOCONB), settings)
}

// iocon.BANK
const bankBit = 0x80

// SelectBank switches the register layout by rewriting IOCON.BANK. The
// other IOCON bits are preserved. Subsequent register accesses use the new
// layout.
func (m *MCP23017) SelectBank(ctx context.Context, bank int) error {
	if bank != 0 && bank != 1 {
		return fmt.Errorf("mcp23017: invalid bank %d", bank)
	}
	settings, err := m.ReadSettings(ctx, PortA)
	if err != nil {
		return err
	}
	next := settings &^ bankBit
	if bank == 1 {
		next |= bankBit
	}
	if next == settings {
		m.setBank(bank)
		return nil
	}
	if err := m.WriteSettings(ctx, PortA, next); err != nil {
		return err
	}
	m.setBank(bank)
	return nil
}

func (m *MCP23017) setBank(bank int) {
	m.mx.Lock()
	m.bank = bank
	m.mx.Unlock()
}

// Read returns both ports with A in the low byte and B in the high byte.
func (m *MCP23017) Read(ctx context.Context) (uint16, error) {
	a, err := m.ReadPort(ctx, PortA)
	if err != nil {
		return 0, err
	}
	b, err := m.ReadPort(ctx, PortB)
	if err != nil {
		return 0, err
	}
	return uint16(b)<<8 | uint16(a), nil
}

// InputSource configures all 16 pins as inputs with pull-ups and returns a
// source sampling them.
func InputSource(ctx context.Context, m *MCP23017) (sensorwatch.Source[uint16], error) {
	for _, p := range []Port{PortA, PortB} {
		if err := m.Init(ctx, p, 0xFF); err != nil {
			return nil, err
		}
		if err := m.PullUp(ctx, p, 0xFF); err != nil {
			return nil, err
		}
	}
	return sensorwatch.SourceFunc[uint16](m.Read), nil
}
