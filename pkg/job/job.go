package job

import "time"

// State is the lifecycle state of a classification job as tracked by the
// queue backend. Transitions are monotonic: PENDING -> STARTED -> SUCCESS
// or FAILURE, and the terminal states never change again.
type State string

const (
	StatePending State = "PENDING"
	StateStarted State = "STARTED"
	StateSuccess State = "SUCCESS"
	StateFailure State = "FAILURE"
	StateUnknown State = "UNKNOWN"
)

// Terminal reports whether no further transitions can occur.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure
}

const (
	PredictionReal = "REAL"
	PredictionFake = "FAKE"
)

// Message is the unit of work crossing the async boundary. It carries the
// embedding matrix, not frames, so the payload stays small and independent
// of the backbone version that produced it.
type Message struct {
	JobID        string      `json:"job_id"`
	ModelID      string      `json:"model_id"`
	Features     [][]float32 `json:"features"`
	FrameObjects []string    `json:"frame_objects,omitempty"`
	SubmittedAt  time.Time   `json:"submitted_at"`
}

// Result is the verdict produced exactly once per job by the worker.
// Probability keeps the raw sigmoid output formatted to four decimals, the
// same precision the result is reported with downstream.
type Result struct {
	Prediction  string  `json:"prediction"`
	Confidence  float64 `json:"confidence"`
	Probability string  `json:"probability"`
	Comment     string  `json:"comment"`
	HeatmapPath string  `json:"heatmap_path,omitempty"`
	ExtremePath string  `json:"extreme_path,omitempty"`
	GalleryPath string  `json:"gallery_path,omitempty"`
}
