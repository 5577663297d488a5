package air

import (
	"context"
)

// TVOCBehaviorFunc returns TVOC in parts-per-billion (ppb) or an error.
type TVOCBehaviorFunc func(ctx context.Context) (uint32, error)

// MockAirQualitySensor produces TVOC readings from a behavior function
// without requiring hardware.
//
//	sensor := NewMockAirQualitySensor(func(ctx context.Context) (uint32, error) { return 750, nil })
type MockAirQualitySensor struct {
	behavior TVOCBehaviorFunc
}

var _ AirQualitySensor = &MockAirQualitySensor{}

func NewMockAirQualitySensor(behavior TVOCBehaviorFunc) *MockAirQualitySensor {
	return &MockAirQualitySensor{behavior: behavior}
}

func (m *MockAirQualitySensor) GetTVOC(ctx context.Context) (uint32, error) {
	return m.behavior(ctx)
}
