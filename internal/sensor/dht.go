package sensor

import (
	"fmt"

	"github.com/afroash/dht"

	"github.com/afroash/serverroom-monitor/internal/models"
)

// DHTSensor defines the interface for reading from a DHT sensor
type DHTSensor interface {
	// Read performs a single reading from the sensor
	// Returns temperature (°C), humidity (%), and any error
	Read() (temperature float64, humidity float64, err error)

	// Close cleans up GPIO resources
	Close() error
}

// DefaultMaxRetries is how many times a failed DHT11 read is repeated
const DefaultMaxRetries = 3

// DHT11Reader implements DHTSensor for DHT11 hardware
type DHT11Reader struct {
	pin        int
	maxRetries int
	sensor     *dht.Sensor
}

// NewDHT11Reader opens the DHT11 on the given GPIO pin
func NewDHT11Reader(pin, maxRetries int) (*DHT11Reader, error) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	sensor, err := dht.NewDHT11(pin)
	if err != nil {
		return nil, fmt.Errorf("failed to open DHT11 on GPIO %d: %w", pin, err)
	}
	return &DHT11Reader{
		pin:        pin,
		maxRetries: maxRetries,
		sensor:     sensor,
	}, nil
}

// Read performs a reading from the DHT11 sensor with retry logic
func (d *DHT11Reader) Read() (float64, float64, error) {
	reading, err := d.sensor.ReadRetry(d.maxRetries)
	if err != nil {
		return 0, 0, fmt.Errorf("after %d retries, failed to read from sensor on GPIO %d: %w", d.maxRetries, d.pin, err)
	}
	if err := validateReading(reading.Temperature, reading.Humidity); err != nil {
		return 0, 0, fmt.Errorf("invalid reading: %w", err)
	}

	return reading.Temperature, reading.Humidity, nil
}

// Close cleans up GPIO resources
func (d *DHT11Reader) Close() error {
	return d.sensor.Close()
}

// validateReading rejects values the record store would refuse
func validateReading(temp, humidity float64) error {
	if temp < models.MinTemperature || temp > models.MaxTemperature {
		return fmt.Errorf("temperature %.1f°C is outside %.0f..%.0f°C", temp, models.MinTemperature, models.MaxTemperature)
	}
	if humidity < models.MinHumidity || humidity > models.MaxHumidity {
		return fmt.Errorf("humidity %.1f%% is outside %.0f..%.0f%%", humidity, models.MinHumidity, models.MaxHumidity)
	}
	return nil
}
