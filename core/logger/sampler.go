package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ratio is a sampling ratio packed as numerator<<32 | denominator.
type ratio uint64

func (r ratio) split() (num, den uint64) {
	return uint64(r) >> 32, uint64(r) & 0xffffffff
}

// ratioSampler lets num out of every den events through. A zero ratio
// disables sampling.
type ratioSampler struct {
	ratio   atomic.Uint64
	counter atomic.Uint64
}

func newRatioSampler(num, den int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(num, den)
	return s
}

// Set replaces the ratio and restarts the cycle.
func (s *ratioSampler) Set(num, den int) {
	var r ratio
	if num > 0 && den > 0 {
		num = min(num, den)
		r = ratio(uint64(num)<<32 | uint64(uint32(den)))
	}
	s.ratio.Store(uint64(r))
	s.counter.Store(0)
}

// Allow reports whether the next event passes.
func (s *ratioSampler) Allow() bool {
	num, den := ratio(s.ratio.Load()).split()
	if num == 0 || den == 0 {
		return true
	}
	return (s.counter.Add(1)-1)%den < num
}

// parseRatio accepts "n/d" or a plain "d", which means 1/d. Anything that
// does not parse, or a non-positive plain value, yields 0/0.
func parseRatio(raw string) (int, int) {
	raw = strings.TrimSpace(raw)
	if n, d, ok := strings.Cut(raw, "/"); ok {
		num, err1 := strconv.Atoi(strings.TrimSpace(n))
		den, err2 := strconv.Atoi(strings.TrimSpace(d))
		if err1 == nil && err2 == nil {
			return num, den
		}
		return 0, 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, 0
	}
	return 1, v
}
