// Package simulator writes synthetic soil moisture and water level readings
// for every registered sensor, so the alert sweeps can be exercised without
// field hardware.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/logger"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/store"
)

// Profile drives the generators of one signal.
type Profile struct {
	Seed        float64
	DecayPerMin float64
	Floor       float64
	Refill      time.Duration
}

type Config struct {
	Soil  Profile
	Water Profile
	Now   func() time.Time
}

func DefaultConfig() Config {
	return Config{
		Soil:  Profile{Seed: 60, DecayPerMin: 0.05, Floor: 35, Refill: 45 * time.Minute},
		Water: Profile{Seed: 80, DecayPerMin: 0.1, Floor: 8, Refill: 2 * time.Hour},
	}
}

// Sensors lists the sensors to simulate.
type Sensors interface {
	ListSensors(ctx context.Context, signal entities.Signal) ([]entities.Sensor, error)
}

type Simulator struct {
	sensors Sensors
	out     store.ReadingWriter
	cfg     Config

	mu   sync.Mutex
	gens map[string]*Generator
	log  zerolog.Logger
}

func New(sensors Sensors, out store.ReadingWriter, cfg Config) *Simulator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Simulator{
		sensors: sensors,
		out:     out,
		cfg:     cfg,
		gens:    make(map[string]*Generator),
		log:     logger.WithComponent("simulator"),
	}
}

func (s *Simulator) profile(sig entities.Signal) Profile {
	if sig == entities.SignalWaterLevel {
		return s.cfg.Water
	}
	return s.cfg.Soil
}

func (s *Simulator) generator(sensor entities.Sensor, now time.Time) *Generator {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gens[sensor.ID]
	if !ok {
		p := s.profile(sensor.Type)
		g = NewGenerator(p.Seed, p.DecayPerMin, p.Floor, p.Refill, now)
		s.gens[sensor.ID] = g
	}
	return g
}

// Tick writes one reading per sensor and returns how many were written.
// A failed write does not stop the others.
func (s *Simulator) Tick(ctx context.Context) (int, error) {
	now := s.cfg.Now()
	var errs []error
	written := 0
	for _, sig := range []entities.Signal{entities.SignalSoilMoisture, entities.SignalWaterLevel} {
		sensors, err := s.sensors.ListSensors(ctx, sig)
		if err != nil {
			errs = append(errs, fmt.Errorf("list %s sensors: %w", sig, err))
			continue
		}
		for _, sensor := range sensors {
			r := s.generator(sensor, now).Next(sensor.ID, now)
			if err := s.out.InsertReading(ctx, r); err != nil {
				errs = append(errs, fmt.Errorf("write reading %s: %w", sensor.ID, err))
				continue
			}
			written++
			s.log.Debug().Str("sensor_id", sensor.ID).Str("signal", string(sig)).Float64("value", r.Value).Msg("reading written")
		}
	}
	return written, errors.Join(errs...)
}

// Start ticks every interval until ctx is done.
func (s *Simulator) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Tick(ctx)
			if err != nil {
				s.log.Error().Err(err).Msg("simulation tick failed")
			}
			s.log.Info().Int("readings", n).Msg("simulation tick")
		}
	}
}
