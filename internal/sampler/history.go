package sampler

import (
	"errors"
	"sync"
	"time"

	"github.com/OldStager01/resilience-plane/pkg/models"
)

const DefaultHistoryCapacity = 1000

var ErrOutOfOrder = errors.New("sample is older than the newest recorded sample")

// Reader is the read-only view of the history handed to consumers.
type Reader interface {
	Snapshot() []models.MetricSample
	Latest() (models.MetricSample, bool)
	Recent(n int) []models.MetricSample
	Len() int
}

// History is a fixed-capacity ring buffer of samples ordered by time.
// Readers always get copies.
type History struct {
	buf   []models.MetricSample
	start int
	size  int
	mu    sync.RWMutex
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{buf: make([]models.MetricSample, capacity)}
}

// Add appends a sample, dropping the oldest one when full.
func (h *History) Add(s models.MetricSample) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.size > 0 && s.Timestamp.Before(h.at(h.size-1).Timestamp) {
		return ErrOutOfOrder
	}

	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = s
		h.size++
		return nil
	}

	h.buf[h.start] = s
	h.start = (h.start + 1) % len(h.buf)
	return nil
}

// at must be called with h.mu held.
func (h *History) at(i int) models.MetricSample {
	return h.buf[(h.start+i)%len(h.buf)]
}

func (h *History) Snapshot() []models.MetricSample {
	return h.Recent(h.Capacity())
}

// Recent returns up to n of the newest samples, oldest first.
func (h *History) Recent(n int) []models.MetricSample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n > h.size {
		n = h.size
	}
	if n <= 0 {
		return []models.MetricSample{}
	}

	out := make([]models.MetricSample, n)
	offset := h.size - n
	for i := 0; i < n; i++ {
		out[i] = h.at(offset + i)
	}
	return out
}

func (h *History) Latest() (models.MetricSample, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.size == 0 {
		return models.MetricSample{}, false
	}
	return h.at(h.size - 1), true
}

// Since returns the samples recorded at or after t.
func (h *History) Since(t time.Time) []models.MetricSample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]models.MetricSample, 0)
	for i := 0; i < h.size; i++ {
		if s := h.at(i); !s.Timestamp.Before(t) {
			out = append(out, s)
		}
	}
	return out
}

func (h *History) Averages(n int) models.MetricAverages {
	return models.CalculateAverages(h.Recent(n))
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

func (h *History) Capacity() int {
	return len(h.buf)
}

// Restore replaces the content with samples, keeping the newest ones that
// fit. Samples must already be time ordered; out-of-order entries are skipped.
func (h *History) Restore(samples []models.MetricSample) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.start, h.size = 0, 0
	if len(samples) > len(h.buf) {
		samples = samples[len(samples)-len(h.buf):]
	}

	var last time.Time
	for _, s := range samples {
		if h.size > 0 && s.Timestamp.Before(last) {
			continue
		}
		h.buf[h.size] = s
		h.size++
		last = s.Timestamp
	}
	return h.size
}
