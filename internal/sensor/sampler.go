package sensor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/serverroom-monitor/internal/models"
)

// Reading is one temperature and humidity sample
type Reading struct {
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	At          time.Time `json:"at"`
}

// Sampler keeps the latest sensor reading fresh so the entry form can be
// pre-filled
type Sampler struct {
	sensor   DHTSensor
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.RWMutex
	latest  *Reading
	lastErr error
}

// NewSampler creates a sampler for the given sensor
func NewSampler(sensor DHTSensor, interval time.Duration, logger zerolog.Logger) *Sampler {
	return &Sampler{
		sensor:   sensor,
		interval: interval,
		logger:   logger,
	}
}

// Start reads immediately and then on every interval until ctx is cancelled
func (s *Sampler) Start(ctx context.Context) error {
	s.sample()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sample()
		}
	}
}

// ReadOnce performs a single reading and records it as the latest
func (s *Sampler) ReadOnce() (Reading, error) {
	temperature, humidity, err := s.sensor.Read()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr = err
		return Reading{}, err
	}

	reading := Reading{
		Temperature: models.Round(temperature, 1),
		Humidity:    models.Round(humidity, 1),
		At:          time.Now(),
	}
	s.latest = &reading
	s.lastErr = nil
	return reading, nil
}

// sample performs a read and logs the outcome
func (s *Sampler) sample() {
	reading, err := s.ReadOnce()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read from sensor")
		return
	}
	s.logger.Debug().
		Float64("temperature", reading.Temperature).
		Float64("humidity", reading.Humidity).
		Msg("read from sensor")
}

// Latest returns the most recent successful reading
func (s *Sampler) Latest() (Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return Reading{}, false
	}
	return *s.latest, true
}

// LastError returns the error of the most recent read, if it failed
func (s *Sampler) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Draft returns an entry form record pre-filled with the latest reading
func (s *Sampler) Draft(now time.Time) *models.MonitoringRecord {
	if s == nil {
		return Draft(now, nil)
	}
	reading, ok := s.Latest()
	if !ok {
		return Draft(now, nil)
	}
	return Draft(now, &reading)
}

// Close stops using the sensor and releases it
func (s *Sampler) Close() error {
	return s.sensor.Close()
}

// Draft builds the default entry form record: the current date and time,
// equipment statuses normal and the extinguisher ready. reading may be nil.
func Draft(now time.Time, reading *Reading) *models.MonitoringRecord {
	draft := &models.MonitoringRecord{
		Date:             now.Format(models.DateLayout),
		Time:             now.Format(models.TimeLayout),
		ACStatus:         models.ACNormal,
		UPSStatus:        models.UPSNormal,
		FireExtinguisher: models.FireExtinguisherReady,
	}
	if reading != nil {
		draft.Temperature = reading.Temperature
		draft.Humidity = reading.Humidity
	}
	return draft
}
