// -- internal/humanoid/pacer.go --
package humanoid

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config tunes the pacing behavior of a Pacer.
type Config struct {
	// Seed makes the pacer deterministic. Zero means seed from the clock.
	Seed int64
	// ActionsPerMinute is a hard ceiling on throttled actions, applied on
	// top of the randomized pauses.
	ActionsPerMinute float64
	// IdleDriftAmplitude scales the Perlin cursor drift in pixels.
	IdleDriftAmplitude float64
}

// Pacer produces human-looking timing: uniform dwells between steps,
// normally distributed "think" pauses, and subtle cursor drift while idle.
type Pacer struct {
	executor Executor
	logger   *zap.Logger
	limiter  *rate.Limiter

	mu        sync.Mutex
	rng       *rand.Rand
	noiseX    *perlin.Perlin
	noiseY    *perlin.Perlin
	noiseTime float64
	pos       Vector2D
	amplitude float64
}

// New creates a Pacer. The executor carries out sleeps and mouse events so
// tests can run without a browser.
func New(cfg Config, executor Executor, logger *zap.Logger) *Pacer {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	apm := cfg.ActionsPerMinute
	if apm <= 0 {
		apm = 20
	}
	amplitude := cfg.IdleDriftAmplitude
	if amplitude <= 0 {
		amplitude = 4.0
	}

	// Standard Perlin parameters.
	alpha, beta, n := 2.0, 2.0, int32(3)

	return &Pacer{
		executor:  executor,
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Limit(apm/60.0), 1),
		rng:       rand.New(rand.NewSource(seed)),
		noiseX:    perlin.NewPerlin(alpha, beta, n, seed),
		noiseY:    perlin.NewPerlin(alpha, beta, n, seed+1), // Offset seed for Y noise.
		amplitude: amplitude,
	}
}

// Throttle blocks until the rate cap admits another browser action.
func (p *Pacer) Throttle(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// Dwell sleeps for a uniform-random duration in [min, max].
func (p *Pacer) Dwell(ctx context.Context, min, max time.Duration) error {
	d := p.sample(min, max)
	if d <= 0 {
		return nil
	}
	// Long dwells get idle cursor drift instead of a dead stop.
	if d > time.Second {
		return p.Idle(ctx, d)
	}
	return p.executor.Sleep(ctx, d)
}

// sample draws a uniform duration from [min, max].
func (p *Pacer) sample(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return min + time.Duration(p.rng.Int63n(int64(max-min)))
}

// CognitivePause models think time before the next action with a normal
// distribution. Negative draws collapse to zero.
func (p *Pacer) CognitivePause(ctx context.Context, meanMs, stdDevMs float64) error {
	p.mu.Lock()
	d := time.Duration(meanMs+p.rng.NormFloat64()*stdDevMs) * time.Millisecond
	p.mu.Unlock()
	if d <= 0 {
		return nil
	}
	return p.executor.Sleep(ctx, d)
}

// Idle waits for the given duration while drifting the cursor along a
// Perlin-noise path, so the session never sits perfectly still.
func (p *Pacer) Idle(ctx context.Context, duration time.Duration) error {
	start := time.Now()
	for time.Since(start) < duration {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.mu.Lock()
		p.noiseTime += 0.01
		drift := Vector2D{
			X: p.noiseX.Noise1D(p.noiseTime) * p.amplitude,
			Y: p.noiseY.Noise1D(p.noiseTime) * p.amplitude,
		}
		target := p.pos.Add(drift)
		stepMs := 60 + p.rng.Intn(120)
		p.mu.Unlock()

		if err := p.executor.DispatchMouseEvent(ctx, MouseEventData{
			Type: MouseMove,
			X:    target.X,
			Y:    target.Y,
		}); err != nil {
			// Cursor drift is cosmetic. Log and fall back to a plain sleep.
			if p.logger != nil {
				p.logger.Debug("Idle cursor drift failed; sleeping instead", zap.Error(err))
			}
			remaining := duration - time.Since(start)
			if remaining <= 0 {
				return nil
			}
			return p.executor.Sleep(ctx, remaining)
		}

		p.mu.Lock()
		p.pos = target
		p.mu.Unlock()

		pause := time.Duration(stepMs) * time.Millisecond
		if remaining := duration - time.Since(start); pause > remaining {
			pause = remaining
		}
		if pause <= 0 {
			break
		}
		if err := p.executor.Sleep(ctx, pause); err != nil {
			return err
		}
	}
	return nil
}

// SetPosition seeds the cursor position used as the idle drift origin.
func (p *Pacer) SetPosition(pos Vector2D) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos = pos
}

// Pick returns a uniformly chosen element of pool, or "" for an empty pool.
func (p *Pacer) Pick(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return pool[p.rng.Intn(len(pool))]
}

// Chance reports true with probability prob.
func (p *Pacer) Chance(prob float64) bool {
	if prob <= 0 {
		return false
	}
	if prob >= 1 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64() < prob
}
