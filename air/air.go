// Package air holds volatile organic compound sensors.
package air

import (
	"context"

	"github.com/mklimuk/sensorwatch"
)

// AirQualitySensor reports total volatile organic compounds in ppb.
type AirQualitySensor interface {
	GetTVOC(ctx context.Context) (uint32, error)
}

// TVOCSource samples s for the monitor.
func TVOCSource(s AirQualitySensor) sensorwatch.Source[uint32] {
	return sensorwatch.SourceFunc[uint32](s.GetTVOC)
}
