package viewer

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
)

// ParseJob is one entry of the parse history.
type ParseJob struct {
	JobID     string  `json:"job_id"`
	Filename  string  `json:"filename"`
	Slicer    string  `json:"slicer"`
	Status    string  `json:"status"`
	StartTime float64 `json:"start_time"`
	Duration  float64 `json:"duration"`
	Lines     int     `json:"lines"`
	Moves     int     `json:"moves"`
	Arcs      int     `json:"arcs"`
	Error     string  `json:"error,omitempty"`
}

// JobTotals aggregates every job recorded since start.
type JobTotals struct {
	TotalJobs    int     `json:"total_jobs"`
	FailedJobs   int     `json:"failed_jobs"`
	TotalLines   int     `json:"total_lines"`
	TotalTime    float64 `json:"total_time"`
	LongestParse float64 `json:"longest_parse"`
}

// History keeps the most recent parses, newest first.
type History struct {
	mu     sync.RWMutex
	jobs   []ParseJob
	limit  int
	totals JobTotals
}

// NewHistory keeps up to limit jobs.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 100
	}
	return &History{limit: limit}
}

func newJobID() string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Add records a finished job.
func (h *History) Add(job ParseJob) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.jobs = append([]ParseJob{job}, h.jobs...)
	if len(h.jobs) > h.limit {
		h.jobs = h.jobs[:h.limit]
	}

	h.totals.TotalJobs++
	if job.Status != statusCompleted {
		h.totals.FailedJobs++
	}
	h.totals.TotalLines += job.Lines
	h.totals.TotalTime += job.Duration
	if job.Duration > h.totals.LongestParse {
		h.totals.LongestParse = job.Duration
	}
}

// List returns up to limit jobs starting at start, newest first.
func (h *History) List(limit, start int) []ParseJob {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if start < 0 || start >= len(h.jobs) {
		return []ParseJob{}
	}
	end := len(h.jobs)
	if limit > 0 && limit < end-start {
		end = start + limit
	}
	out := make([]ParseJob, end-start)
	copy(out, h.jobs[start:end])
	return out
}

// Get finds a job by id.
func (h *History) Get(id string) (ParseJob, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, j := range h.jobs {
		if j.JobID == id {
			return j, true
		}
	}
	return ParseJob{}, false
}

// Totals returns the running totals.
func (h *History) Totals() JobTotals {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totals
}
