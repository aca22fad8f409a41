package service

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"commit-reveal-voting/models"
)

var (
	ErrQueueFull = errors.New("transaction queue is full")
	ErrStopped   = errors.New("sequencer stopped")
)

// Sequencer feeds submissions to the voting service from a bounded queue,
// one at a time, in arrival order.
type Sequencer struct {
	votingService *VotingService
	requests      chan *submitRequest
	shutdownCh    chan struct{}
	processingWg  sync.WaitGroup
	// held shared while enqueueing, exclusively while closing shutdownCh
	enqueueMu sync.RWMutex
	stopOnce      sync.Once
}

type submitRequest struct {
	ctx      context.Context
	tx       *models.Transaction
	resultCh chan *submitResult
}

type submitResult struct {
	receipt *models.Receipt
	err     error
}

func NewSequencer(votingService *VotingService, queueSize int) *Sequencer {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Sequencer{
		votingService: votingService,
		requests:      make(chan *submitRequest, queueSize),
		shutdownCh:    make(chan struct{}),
	}
}

// Start launches the worker.
func (s *Sequencer) Start() {
	s.processingWg.Add(1)
	go s.worker()
}

// Stop waits for the request in progress and fails the rest with ErrStopped.
func (s *Sequencer) Stop() {
	s.stopOnce.Do(func() {
		s.enqueueMu.Lock()
		close(s.shutdownCh)
		s.enqueueMu.Unlock()

		s.processingWg.Wait()
		for {
			select {
			case req := <-s.requests:
				req.resultCh <- &submitResult{err: ErrStopped}
			default:
				return
			}
		}
	})
}

// Submit queues tx and waits for its result. It fails immediately with
// ErrQueueFull when the queue is saturated. A request whose context ends
// before the worker reaches it is skipped.
func (s *Sequencer) Submit(ctx context.Context, tx *models.Transaction) (*models.Receipt, error) {
	req := &submitRequest{ctx: ctx, tx: tx, resultCh: make(chan *submitResult, 1)}

	if err := s.enqueue(req); err != nil {
		return nil, err
	}

	select {
	case res := <-req.resultCh:
		return res.receipt, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// enqueue adds req unless the sequencer is stopped. Stop cannot close
// shutdownCh between the check and the send, so every queued request is
// answered by either the worker or the drain in Stop.
func (s *Sequencer) enqueue(req *submitRequest) error {
	s.enqueueMu.RLock()
	defer s.enqueueMu.RUnlock()

	select {
	case <-s.shutdownCh:
		return ErrStopped
	default:
	}
	select {
	case s.requests <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued requests.
func (s *Sequencer) Pending() int {
	return len(s.requests)
}

func (s *Sequencer) worker() {
	defer s.processingWg.Done()

	for {
		select {
		case <-s.shutdownCh:
			return
		case req := <-s.requests:
			if err := req.ctx.Err(); err != nil {
				req.resultCh <- &submitResult{err: err}
				continue
			}
			receipt, err := s.votingService.Submit(req.tx)
			req.resultCh <- &submitResult{receipt: receipt, err: err}
		}
	}
}
