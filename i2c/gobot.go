package i2c

import (
	"context"
	"errors"
	"fmt"
	"sync"

	gobot "gobot.io/x/gobot/v2/drivers/i2c"

	"github.com/mklimuk/sensorwatch"
)

var _ sensorwatch.I2CBus = &GobotBus{}

// GobotBus adapts a gobot I2C connector (e.g. a NanoPi adaptor) to the
// address based bus interface. One connection per device address is opened
// lazily and reused.
type GobotBus struct {
	mx        sync.Mutex
	connector gobot.Connector
	bus       int
	conns     map[byte]gobot.Connection
}

func NewGobotBus(connector gobot.Connector, bus int) *GobotBus {
	return &GobotBus{
		connector: connector,
		bus:       bus,
		conns:     make(map[byte]gobot.Connection),
	}
}

func (b *GobotBus) connection(address byte) (gobot.Connection, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	if c, ok := b.conns[address]; ok {
		return c, nil
	}
	c, err := b.connector.GetI2cConnection(int(address), b.bus)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c connection %d/%#x: %w", b.bus, address, err)
	}
	b.conns[address] = c
	return c, nil
}

func (b *GobotBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := b.connection(address)
	if err != nil {
		return err
	}
	n, err := c.Read(buffer)
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	if n != len(buffer) {
		return fmt.Errorf("short read from i2c bus %x: got %d of %d bytes", address, n, len(buffer))
	}
	return nil
}

func (b *GobotBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := b.connection(address)
	if err != nil {
		return err
	}
	if _, err := c.Write(buffer); err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

// Release drops every cached connection so the next transaction reopens it.
func (b *GobotBus) Release(ctx context.Context) error {
	return b.closeAll()
}

func (b *GobotBus) Close() error {
	return b.closeAll()
}

func (b *GobotBus) closeAll() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var errs []error
	for addr, c := range b.conns {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("could not close i2c connection %#x: %w", addr, err))
		}
		delete(b.conns, addr)
	}
	return errors.Join(errs...)
}
