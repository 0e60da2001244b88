package auth

import (
	"context"
	"sync"

	"washpos/core/store"
	"washpos/core/utils"
)

const recorderBuffer = 256

// Recorder decouples audit writes from the request path. Entries go through a
// buffered channel to a single writer goroutine; when the buffer is full the
// entry is dropped and logged rather than delaying the caller.
type Recorder struct {
	audit  store.AuditStore
	logger *utils.Logger

	ch      chan store.AuditRecord
	pending sync.WaitGroup
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewRecorder(audit store.AuditStore, logger *utils.Logger) *Recorder {
	r := &Recorder{
		audit:  audit,
		logger: logger,
		ch:     make(chan store.AuditRecord, recorderBuffer),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.ch {
		if err := r.audit.Append(context.Background(), &rec); err != nil && r.logger != nil {
			r.logger.Errorf("audit append failed (account=%d action=%s): %v", rec.AccountID, rec.Action, err)
		}
		r.pending.Done()
	}
}

// Record never blocks and never fails the caller.
func (r *Recorder) Record(rec store.AuditRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.pending.Add(1)
	select {
	case r.ch <- rec:
	default:
		r.pending.Done()
		if r.logger != nil {
			r.logger.Errorf("audit buffer full, dropping entry (account=%d action=%s)", rec.AccountID, rec.Action)
		}
	}
}

// Flush waits until every accepted entry has been written. Used by tests and
// shutdown.
func (r *Recorder) Flush() {
	r.pending.Wait()
}

func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	close(r.ch)
	<-r.done
}
