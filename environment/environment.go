// Package environment holds drivers for temperature, humidity and ambient
// light sensors and adapts them to sample sources for the monitor.
package environment

import (
	"context"
	"errors"
	"math"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/sensorwatch"
)

var (
	ErrNotReady    = errors.New("measurement not ready")
	ErrUnsupported = errors.New("quantity not supported by sensor")
)

type TemperatureSensor interface {
	GetTemperature(ctx context.Context) (float32, error)
}

type HumiditySensor interface {
	GetHumidity(ctx context.Context) (float32, error)
}

type TemperatureAndHumiditySensor interface {
	TemperatureSensor
	HumiditySensor
	GetTempAndHum(ctx context.Context) (float32, float32, error)
}

type LightSensor interface {
	GetLux(ctx context.Context) (int, error)
}

// Celsius converts a driver reading to a periph temperature.
func Celsius(c float32) physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(math.Round(float64(c)*float64(physic.Celsius)))
}

// Percent converts a driver reading in %RH to a periph relative humidity.
func Percent(p float32) physic.RelativeHumidity {
	return physic.RelativeHumidity(math.Round(float64(p) * float64(physic.PercentRH)))
}

// TemperatureDistance measures the difference in degrees Celsius, so change
// thresholds are configured in °C.
func TemperatureDistance(a, b physic.Temperature) float64 {
	return math.Abs(a.Celsius() - b.Celsius())
}

// HumidityDistance measures the difference in %RH.
func HumidityDistance(a, b physic.RelativeHumidity) float64 {
	return math.Abs(float64(a-b)) / float64(physic.PercentRH)
}

func TemperatureSource(s TemperatureSensor) sensorwatch.Source[physic.Temperature] {
	return sensorwatch.SourceFunc[physic.Temperature](func(ctx context.Context) (physic.Temperature, error) {
		c, err := s.GetTemperature(ctx)
		if err != nil {
			return 0, err
		}
		return Celsius(c), nil
	})
}

func HumiditySource(s HumiditySensor) sensorwatch.Source[physic.RelativeHumidity] {
	return sensorwatch.SourceFunc[physic.RelativeHumidity](func(ctx context.Context) (physic.RelativeHumidity, error) {
		h, err := s.GetHumidity(ctx)
		if err != nil {
			return 0, err
		}
		return Percent(h), nil
	})
}

func LightSource(s LightSensor) sensorwatch.Source[int] {
	return sensorwatch.SourceFunc[int](s.GetLux)
}

// sleep waits for a conversion to complete unless ctx is done first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
