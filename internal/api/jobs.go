package api

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusComplete   = "complete"
	JobStatusFailed     = "failed"
)

// GenerationJob tracks the progress of an asynchronous generation request
// that the frontend polls.
type GenerationJob struct {
	ID         string     `json:"jobId"`
	Status     string     `json:"status"`
	Category   string     `json:"category"`
	Count      int        `json:"count"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	Flashcards []cardView `json:"flashcards,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type JobManager struct {
	mu   sync.RWMutex
	jobs map[string]*GenerationJob
}

func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*GenerationJob),
	}
}

func (m *JobManager) CreateJob(category string, count int) (string, *GenerationJob) {
	job := &GenerationJob{
		ID:        uuid.NewString(),
		Status:    JobStatusPending,
		Category:  category,
		Count:     count,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	return job.ID, job.clone()
}

func (m *JobManager) GetJob(id string) (*GenerationJob, bool) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return job.clone(), true
}

func (m *JobManager) MarkProcessing(id string) {
	m.withJob(id, func(job *GenerationJob) {
		job.Status = JobStatusProcessing
	})
}

func (m *JobManager) MarkCompleted(id string, cards []cardView) {
	m.withJob(id, func(job *GenerationJob) {
		job.Status = JobStatusComplete
		job.Flashcards = cards
	})
}

func (m *JobManager) MarkFailed(id string, msg string) {
	m.withJob(id, func(job *GenerationJob) {
		job.Status = JobStatusFailed
		job.Error = strings.TrimSpace(msg)
	})
}

func (m *JobManager) withJob(id string, update func(job *GenerationJob)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	update(job)
	job.UpdatedAt = time.Now().UTC()
}

func (j *GenerationJob) clone() *GenerationJob {
	copied := *j
	if j.Flashcards != nil {
		copied.Flashcards = append([]cardView(nil), j.Flashcards...)
	}
	return &copied
}
