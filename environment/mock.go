package environment

import "context"

// TemperatureBehaviorFunc returns a temperature in Celsius.
type TemperatureBehaviorFunc func(ctx context.Context) (float32, error)

// HumidityBehaviorFunc returns a relative humidity in %RH.
type HumidityBehaviorFunc func(ctx context.Context) (float32, error)

// LightBehaviorFunc returns an illuminance in lux.
type LightBehaviorFunc func(ctx context.Context) (int, error)

// MockTemperatureAndHumiditySensor produces readings from behavior
// functions instead of hardware. A nil humidity behavior reports
// ErrUnsupported, which makes it a temperature-only mock like a TC74.
type MockTemperatureAndHumiditySensor struct {
	tempBehavior TemperatureBehaviorFunc
	humBehavior  HumidityBehaviorFunc
}

var _ TemperatureAndHumiditySensor = &MockTemperatureAndHumiditySensor{}

func NewMockTemperatureAndHumiditySensor(tempBehavior TemperatureBehaviorFunc, humBehavior HumidityBehaviorFunc) *MockTemperatureAndHumiditySensor {
	return &MockTemperatureAndHumiditySensor{tempBehavior: tempBehavior, humBehavior: humBehavior}
}

// NewMockTemperatureSensor is a temperature-only mock.
func NewMockTemperatureSensor(behavior TemperatureBehaviorFunc) *MockTemperatureAndHumiditySensor {
	return NewMockTemperatureAndHumiditySensor(behavior, nil)
}

func (m *MockTemperatureAndHumiditySensor) GetTemperature(ctx context.Context) (float32, error) {
	return m.tempBehavior(ctx)
}

func (m *MockTemperatureAndHumiditySensor) GetHumidity(ctx context.Context) (float32, error) {
	if m.humBehavior == nil {
		return 0, ErrUnsupported
	}
	return m.humBehavior(ctx)
}

func (m *MockTemperatureAndHumiditySensor) GetTempAndHum(ctx context.Context) (float32, float32, error) {
	temp, err := m.GetTemperature(ctx)
	if err != nil {
		return 0, 0, err
	}
	hum, err := m.GetHumidity(ctx)
	if err != nil {
		return 0, 0, err
	}
	return temp, hum, nil
}

// MockLightSensor produces lux readings from a behavior function.
type MockLightSensor struct {
	behavior LightBehaviorFunc
}

func NewMockLightSensor(behavior LightBehaviorFunc) *MockLightSensor {
	return &MockLightSensor{behavior: behavior}
}

func (m *MockLightSensor) GetLux(ctx context.Context) (int, error) {
	return m.behavior(ctx)
}
