package relay

import (
	"sync/atomic"
	"time"
)

// IDSequence hands out message ids that look like Unix millisecond
// timestamps but never repeat: when two sends land in the same millisecond
// the later one gets last+1.
type IDSequence struct {
	last atomic.Int64
	now  func() time.Time
}

func NewIDSequence(now func() time.Time) *IDSequence {
	if now == nil {
		now = time.Now
	}
	return &IDSequence{now: now}
}

func (s *IDSequence) Next() int64 {
	for {
		last := s.last.Load()
		next := s.now().UnixMilli()
		if next <= last {
			next = last + 1
		}
		if s.last.CompareAndSwap(last, next) {
			return next
		}
	}
}
