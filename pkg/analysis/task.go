// Package analysis tracks the background analysis of an uploaded video:
// submit the file, poll the job until it finishes, and keep the frames.
package analysis

import (
	"io"
	"time"

	"github.com/teslashibe/sentinel/pkg/playback"
)

// State is the lifecycle state of a Task.
type State string

const (
	StateIdle       State = "idle"
	StateUploading  State = "uploading"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transitions happen without Reset.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Status strings reported by the analysis service.
const (
	RemotePending    = "pending"
	RemoteProcessing = "processing"
	RemoteCompleted  = "completed"
	RemoteFailed     = "failed"
)

// Metadata describes the analysed video.
type Metadata struct {
	Duration    float64 `json:"duration"`
	TotalFrames int     `json:"total_frames"`
	FPS         float64 `json:"fps"`
	ProcessedAt string  `json:"processed_at"`
}

// Result is the output of a completed analysis.
type Result struct {
	Metadata Metadata               `json:"metadata"`
	Frames   []playback.FrameRecord `json:"frames"`
}

// StatusReport is one answer from the status endpoint.
type StatusReport struct {
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Result   *Result `json:"result,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// Upload is a video to analyse.
type Upload struct {
	Filename string
	Body     io.Reader
}

// Task is a snapshot of the tracked analysis job.
type Task struct {
	ID          string    `json:"id"`
	State       State     `json:"status"`
	Progress    float64   `json:"progress"`
	Result      *Result   `json:"result,omitempty"`
	Err         error     `json:"-"`
	Polls       int       `json:"polls"`
	SubmittedAt time.Time `json:"submitted_at"`
}
