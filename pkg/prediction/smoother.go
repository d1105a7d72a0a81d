package prediction

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// Smoother decays a prediction error linearly to zero over its duration.
// The render position is the predicted position plus Offset.
type Smoother struct {
	duration time.Duration
	err      mgl32.Vec3
	at       time.Duration
	active   bool
}

// NewSmoother 构造
func NewSmoother(duration time.Duration) *Smoother {
	return &Smoother{duration: duration}
}

// Set starts smoothing err at time now
func (s *Smoother) Set(err mgl32.Vec3, now time.Duration) {
	if s.duration <= 0 {
		return
	}
	s.err = err
	s.at = now
	s.active = true
}

// Clear drops any pending error, used on teleport
func (s *Smoother) Clear() {
	s.err = mgl32.Vec3{}
	s.active = false
}

// Active error still decaying
func (s *Smoother) Active() bool {
	return s.active
}

// Offset remaining error at now
func (s *Smoother) Offset(now time.Duration) mgl32.Vec3 {
	if !s.active {
		return mgl32.Vec3{}
	}
	amount := float32(now-s.at) / float32(s.duration)
	if amount >= 1 {
		s.Clear()
		return mgl32.Vec3{}
	}
	if amount < 0 {
		amount = 0
	}
	return s.err.Mul(1 - amount)
}
