package simulator

import (
	"math"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
)

// gainPerMin is how many percentage points a sensor gains per minute while
// it is being refilled or irrigated.
const gainPerMin = 0.6

// Generator keeps the simulated value of one sensor. The value decays
// linearly; when it reaches the floor a refill runs for a fixed duration.
type Generator struct {
	mu          sync.Mutex
	value       float64
	last        time.Time
	decayPerMin float64
	floor       float64
	refill      time.Duration
	refillUntil time.Time
}

func NewGenerator(seed, decayPerMin, floor float64, refill time.Duration, start time.Time) *Generator {
	return &Generator{
		value:       clamp(seed),
		last:        start,
		decayPerMin: math.Max(0, decayPerMin),
		floor:       floor,
		refill:      refill,
	}
}

// Next advances the state to now and returns the reading.
func (g *Generator) Next(sensorID string, now time.Time) entities.Reading {
	g.mu.Lock()
	defer g.mu.Unlock()

	dt := now.Sub(g.last)
	if dt < 0 {
		dt = 0
	}
	on := time.Duration(0)
	if g.refillUntil.After(g.last) {
		end := g.refillUntil
		if now.Before(end) {
			end = now
		}
		on = end.Sub(g.last)
	}
	off := dt - on
	g.value = clamp(g.value + gainPerMin*on.Minutes() - g.decayPerMin*off.Minutes())
	g.last = now

	if g.value <= g.floor && !g.refillUntil.After(now) {
		g.refillUntil = now.Add(g.refill)
	}
	return entities.Reading{
		SensorID:  sensorID,
		Value:     math.Round(g.value*10) / 10,
		Timestamp: now,
	}
}

// Refilling reports whether a refill is running at t.
func (g *Generator) Refilling(t time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refillUntil.After(t)
}

func clamp(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 100 {
		return 100
	}
	return x
}
