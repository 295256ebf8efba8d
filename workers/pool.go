// Package workers runs external-engine jobs on bounded pools, one pool per
// engine, so a burst of requests never starts more tool processes than the
// host can take.
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/akila/media-converter/models"
)

// ErrStopped is returned by Submit once the pool has been shut down.
var ErrStopped = errors.New("worker pool stopped")

const queueSize = 100

type WorkerPool struct {
	Name     string
	JobQueue chan models.Job
	workers  int
	handler  func(models.Job)
	wg       sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

func NewWorkerPool(name string, workers int, handler func(models.Job)) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		Name:     name,
		JobQueue: make(chan models.Job, queueSize),
		workers:  workers,
		handler:  handler,
	}
}

func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-p.JobQueue:
					if !ok {
						return
					}
					p.handler(job)
				}
			}
		}(i)
	}
}

// Submit queues job and blocks until a worker reports its result or ctx is
// done. job.Ctx and job.ResultChan are set here.
func (p *WorkerPool) Submit(ctx context.Context, job models.Job) (models.JobResult, error) {
	job.Ctx = ctx
	job.ResultChan = make(chan models.JobResult, 1)
	if job.Engine == "" {
		job.Engine = p.Name
	}

	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		return models.JobResult{}, ErrStopped
	}
	select {
	case p.JobQueue <- job:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return models.JobResult{}, ctx.Err()
	}

	select {
	case res := <-job.ResultChan:
		return res, nil
	case <-ctx.Done():
		return models.JobResult{}, ctx.Err()
	}
}

// Wait stops accepting jobs, lets queued ones drain and waits for workers.
func (p *WorkerPool) Wait() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.JobQueue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// runJob is the handler every engine pool uses.
func runJob(job models.Job) {
	log := slog.With("jobId", job.ID, "engine", job.Engine)
	if err := job.Ctx.Err(); err != nil {
		log.Info("job abandoned before start", "error", err)
		job.ResultChan <- models.JobResult{Error: err}
		return
	}

	log.Info("worker starting", "from", job.FromFormat, "to", job.ToFormat)
	start := time.Now()
	path, err := safeRun(job)
	if err != nil {
		log.Error("worker failed", "error", err, "elapsed", time.Since(start))
	} else {
		log.Info("worker finished", "output", path, "elapsed", time.Since(start))
	}

	job.ResultChan <- models.JobResult{
		Success: err == nil,
		Error:   err,
		Path:    path,
	}
}

func safeRun(job models.Job) (path string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s worker panic: %v", job.Engine, r)
		}
	}()
	if job.Run == nil {
		return "", fmt.Errorf("job %s has nothing to run", job.ID)
	}
	return job.Run(job.Ctx)
}

// Engines
const (
	EngineSpeech    = "speech"
	EngineOffice    = "libreoffice"
	EnginePoppler   = "poppler"
	EnginePDF       = "pdfcpu"
	EngineMedia     = "ffmpeg"
	EngineInference = "rembg"
)

type EngineManager struct {
	SpeechPool    *WorkerPool
	OfficePool    *WorkerPool
	PopplerPool   *WorkerPool
	PDFPool       *WorkerPool
	MediaPool     *WorkerPool
	InferencePool *WorkerPool
}

func NewEngineManager(numWorkers int) *EngineManager {
	return &EngineManager{
		SpeechPool:    NewWorkerPool(EngineSpeech, numWorkers, runJob),
		OfficePool:    NewWorkerPool(EngineOffice, numWorkers, runJob),
		PopplerPool:   NewWorkerPool(EnginePoppler, numWorkers, runJob),
		PDFPool:       NewWorkerPool(EnginePDF, numWorkers, runJob),
		MediaPool:     NewWorkerPool(EngineMedia, numWorkers, runJob),
		InferencePool: NewWorkerPool(EngineInference, numWorkers, runJob),
	}
}

func (m *EngineManager) pools() []*WorkerPool {
	return []*WorkerPool{m.SpeechPool, m.OfficePool, m.PopplerPool, m.PDFPool, m.MediaPool, m.InferencePool}
}

func (m *EngineManager) Start(ctx context.Context) {
	for _, p := range m.pools() {
		p.Start(ctx)
	}
}

// Wait drains every pool.
func (m *EngineManager) Wait() {
	for _, p := range m.pools() {
		p.Wait()
	}
}
