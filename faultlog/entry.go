package faultlog

import (
	"time"

	"github.com/mklimuk/sensorwatch/monitor"
)

// Entry is the persisted form of a monitor.Fault. Keys are encoded as
// integers to keep the log compact.
type Entry struct {
	Timestamp      time.Time `cbor:"1,keyasint"`
	Sensor         string    `cbor:"2,keyasint"`
	Kind           string    `cbor:"3,keyasint"`
	Error          string    `cbor:"4,keyasint,omitempty"`
	Consecutive    int       `cbor:"5,keyasint,omitempty"`
	SubscriptionID string    `cbor:"6,keyasint,omitempty"`
}

func FromFault(f monitor.Fault) Entry {
	e := Entry{
		Timestamp:      f.Timestamp,
		Sensor:         f.Sensor,
		Kind:           f.Kind.String(),
		Consecutive:    f.Consecutive,
		SubscriptionID: f.SubscriptionID,
	}
	if f.Err != nil {
		e.Error = f.Err.Error()
	}
	return e
}
