package worker

import "proxyencoder/internal/queue"

// Status summarises the worker for the daemon's status endpoint.
type Status struct {
	ID          string       `json:"id"`
	Hostname    string       `json:"hostname"`
	QueueName   string       `json:"queue_name"`
	Concurrency int          `json:"concurrency"`
	Running     bool         `json:"running"`
	Active      []*queue.Job `json:"active"`
	Completed   int          `json:"completed"`
	Failed      int          `json:"failed"`
	LastError   string       `json:"last_error,omitempty"`
	LastJob     *queue.Job   `json:"last_job,omitempty"`
}

// Status returns a snapshot of the worker's activity.
func (w *Worker) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()

	status := Status{
		ID:          w.id,
		Hostname:    w.hostname,
		QueueName:   w.queueName,
		Concurrency: w.concurrency,
		Running:     w.running,
		Completed:   w.completed,
		Failed:      w.failed,
	}
	for slot := range w.concurrency {
		if job := w.active[slot]; job != nil {
			copied := *job
			status.Active = append(status.Active, &copied)
		}
	}
	if w.lastErr != nil {
		status.LastError = w.lastErr.Error()
	}
	if w.lastJob != nil {
		copied := *w.lastJob
		status.LastJob = &copied
	}
	return status
}

func (w *Worker) setActive(slot int, job *queue.Job) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if job == nil {
		delete(w.active, slot)
		return
	}
	copied := *job
	w.active[slot] = &copied
}

func (w *Worker) recordOutcome(job *queue.Job, err error, counted bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if job != nil {
		copied := *job
		w.lastJob = &copied
	}
	if err != nil {
		w.lastErr = err
	}
	if !counted {
		return
	}
	if err != nil {
		w.failed++
	} else {
		w.completed++
	}
}
