package sensorwatch

import (
	"context"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

// AddressableReader reads a response from the device at address.
type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

// AddressableWriter writes a command to the device at address. Release frees
// the bus after a failed or busy transaction.
type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// I2CBus is the bus transaction provider drivers are built on.
type I2CBus interface {
	AddressableReader
	AddressableWriter
}
