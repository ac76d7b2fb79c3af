package logging

// ProgressSampler decides which encode progress updates are worth a log line:
// the first one, each time progress crosses a multiple of the step, and the
// final one.
type ProgressSampler struct {
	step float64
	next float64
	done bool
}

// NewProgressSampler returns a sampler logging every step percent. A step
// outside (0, 100] means 10.
func NewProgressSampler(step float64) *ProgressSampler {
	if step <= 0 || step > 100 {
		step = 10
	}
	return &ProgressSampler{step: step}
}

// Due reports whether an update at percent should be logged. Unknown
// progress (percent < 0) is logged once.
func (s *ProgressSampler) Due(percent float64, final bool) bool {
	if s.done {
		return false
	}
	if final {
		s.done = true
		return true
	}
	if percent < 0 {
		if s.next < 0 {
			return false
		}
		s.next = -1
		return true
	}
	if percent < s.next {
		return false
	}
	for s.next <= percent {
		s.next += s.step
	}
	return true
}
