// Package playback maps a video playback position onto the per-frame
// detections produced by analysis.
package playback

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/teslashibe/sentinel/pkg/site"
)

// ErrUnsortedFrames is returned when frame timestamps decrease.
var ErrUnsortedFrames = errors.New("playback: frame timestamps not sorted")

// ValidationError identifies the offending frame.
type ValidationError struct {
	Index int
	Err   error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("playback: frame %d: %v", e.Index, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error { return e.Err }

// FrameRecord is the worker set detected in one video frame.
type FrameRecord struct {
	Frame     int                   `json:"frame"`
	Timestamp float64               `json:"timestamp"`
	Workers   []site.WorkerSnapshot `json:"workers"`
}

// Validate checks that frames are ordered by non-decreasing timestamp.
func Validate(frames []FrameRecord) error {
	for i := range frames {
		if math.IsNaN(frames[i].Timestamp) {
			return &ValidationError{Index: i, Err: fmt.Errorf("timestamp is NaN")}
		}
		if i > 0 && frames[i].Timestamp < frames[i-1].Timestamp {
			return &ValidationError{Index: i, Err: ErrUnsortedFrames}
		}
	}
	return nil
}

// Locate returns the last frame whose timestamp is at or before t. Times
// before the first frame, including NaN, select the first frame; times after
// the last select the last. An empty sequence yields an empty FrameRecord.
func Locate(frames []FrameRecord, t float64) FrameRecord {
	i := locateIndex(frames, t)
	if i < 0 {
		return FrameRecord{}
	}
	return frames[i]
}

func locateIndex(frames []FrameRecord, t float64) int {
	if len(frames) == 0 {
		return -1
	}
	if math.IsNaN(t) {
		return 0
	}
	i := sort.Search(len(frames), func(i int) bool { return frames[i].Timestamp > t }) - 1
	if i < 0 {
		return 0
	}
	return i
}

// Synchronizer answers Locate queries against one frame sequence, caching
// the last match so sequential playback scans forward instead of searching.
// Results always equal Locate(frames, t).
type Synchronizer struct {
	mu     sync.Mutex
	frames []FrameRecord
	last   int
}

// NewSynchronizer validates frames and returns a synchronizer over them.
func NewSynchronizer(frames []FrameRecord) (*Synchronizer, error) {
	if err := Validate(frames); err != nil {
		return nil, err
	}
	return &Synchronizer{frames: frames}, nil
}

// Len returns the number of frames.
func (s *Synchronizer) Len() int { return len(s.frames) }

// Duration returns the last frame's timestamp.
func (s *Synchronizer) Duration() float64 {
	if len(s.frames) == 0 {
		return 0
	}
	return s.frames[len(s.frames)-1].Timestamp
}

// Locate returns the frame for playback position t.
func (s *Synchronizer) Locate(t float64) FrameRecord {
	i := s.Index(t)
	if i < 0 {
		return FrameRecord{}
	}
	return s.frames[i]
}

// Index returns the frame index for t, or -1 when there are no frames.
func (s *Synchronizer) Index(t float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.frames)
	if n == 0 {
		return -1
	}
	if math.IsNaN(t) {
		return 0
	}

	i := s.last
	if t < s.frames[i].Timestamp {
		// Seek backward.
		s.last = locateIndex(s.frames, t)
		return s.last
	}
	for i+1 < n && s.frames[i+1].Timestamp <= t {
		i++
	}
	s.last = i
	return i
}
