package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heydoc/booking-platform/pkg/logging"
)

// Dispatcher is the queue-backed Service used by HTTP handlers.
type Dispatcher interface {
	Service
	Shutdown(ctx context.Context) error
}

// ErrDispatcherClosed indicates the dispatcher no longer accepts work.
var ErrDispatcherClosed = errors.New("conversation: dispatcher closed")

const (
	defaultWorkers          = 2
	defaultReceiveWait      = 2 // seconds
	defaultReceiveMax       = 5 // messages
	maxReceiveWaitSeconds   = 20
	maxReceiveBatchMessages = 10
)

type dispatcherConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

// DispatcherOption configures a QueueDispatcher.
type DispatcherOption func(*dispatcherConfig)

// WithWorkerCount overrides the number of queue polling goroutines.
func WithWorkerCount(workers int) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		if workers > 0 {
			cfg.workers = workers
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait used on Receive calls.
func WithReceiveWaitSeconds(seconds int) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxReceiveWaitSeconds {
			seconds = maxReceiveWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize overrides how many jobs each poll may return.
func WithReceiveBatchSize(size int) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchMessages {
			size = maxReceiveBatchMessages
		}
		cfg.receiveBatchSize = size
	}
}

// QueueDispatcher routes conversation turns through a job queue before
// invoking the engine. Callers block until their own job completes, so the
// HTTP surface keeps its request/response shape while the work itself can
// run through SQS.
type QueueDispatcher struct {
	engine Service
	queue  jobQueue
	logger *logging.Logger

	cfg dispatcherConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	pending sync.Map // jobID -> chan jobResult
}

var _ Dispatcher = (*QueueDispatcher)(nil)

// NewQueueDispatcher starts the polling workers around the engine.
func NewQueueDispatcher(engine Service, queue jobQueue, logger *logging.Logger, opts ...DispatcherOption) *QueueDispatcher {
	if engine == nil {
		panic("conversation: engine cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := dispatcherConfig{
		workers:          defaultWorkers,
		receiveWaitSecs:  defaultReceiveWait,
		receiveBatchSize: defaultReceiveMax,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &QueueDispatcher{
		engine: engine,
		queue:  queue,
		logger: logger,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < cfg.workers; i++ {
		d.wg.Add(1)
		go d.poll(i + 1)
	}
	return d
}

// StartConversation enqueues the request and blocks until a worker has run
// it through the engine.
func (d *QueueDispatcher) StartConversation(ctx context.Context, req StartRequest) (*Response, error) {
	return d.enqueue(ctx, jobTypeStart, req, MessageRequest{})
}

// ProcessMessage enqueues one turn and returns its processed output.
func (d *QueueDispatcher) ProcessMessage(ctx context.Context, req MessageRequest) (*Response, error) {
	return d.enqueue(ctx, jobTypeMessage, StartRequest{}, req)
}

// Shutdown stops the workers and fails any callers still waiting.
func (d *QueueDispatcher) Shutdown(ctx context.Context) error {
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}

	d.pending.Range(func(key, value any) bool {
		if ch, ok := value.(chan jobResult); ok {
			select {
			case ch <- jobResult{err: ErrDispatcherClosed}:
			default:
			}
		}
		d.pending.Delete(key)
		return true
	})
	return nil
}

func (d *QueueDispatcher) enqueue(ctx context.Context, kind jobType, startReq StartRequest, msgReq MessageRequest) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	jobID := uuid.NewString()
	payload := jobPayload{
		ID:      jobID,
		Kind:    kind,
		Start:   startReq,
		Message: msgReq,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to encode job: %w", err)
	}

	resultCh := make(chan jobResult, 1)
	d.pending.Store(jobID, resultCh)
	defer d.pending.Delete(jobID)

	if err := d.queue.Send(ctx, string(body)); err != nil {
		return nil, fmt.Errorf("conversation: failed to enqueue job: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		return res.response, res.err
	}
}

func (d *QueueDispatcher) poll(workerID int) {
	defer d.wg.Done()
	d.logger.Debug("conversation dispatcher worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-d.ctx.Done():
			d.logger.Debug("conversation dispatcher worker stopping", "worker_id", workerID)
			return
		default:
		}

		batch, err := d.queue.Receive(d.ctx, d.cfg.receiveBatchSize, d.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			d.logger.Error("failed to receive conversation jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, env := range batch {
			d.consume(env)
		}
	}
}

func (d *QueueDispatcher) consume(env jobEnvelope) {
	var payload jobPayload
	if err := json.Unmarshal([]byte(env.Body), &payload); err != nil {
		d.logger.Error("failed to decode conversation job", "error", err)
		d.ack(env)
		return
	}

	var (
		resp *Response
		err  error
	)
	switch payload.Kind {
	case jobTypeStart:
		resp, err = d.engine.StartConversation(d.ctx, payload.Start)
	case jobTypeMessage:
		resp, err = d.engine.ProcessMessage(d.ctx, payload.Message)
	default:
		err = fmt.Errorf("conversation: unknown job type %q", payload.Kind)
	}

	d.ack(env)
	d.deliver(payload.ID, resp, err)
}

// ack deletes the job from the queue once it has been handled, successfully
// or not. Failed jobs are not retried: the user simply sends another
// message.
func (d *QueueDispatcher) ack(env jobEnvelope) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.queue.Delete(ctx, env.ReceiptHandle); err != nil {
		d.logger.Error("failed to delete conversation job", "error", err)
	}
}

func (d *QueueDispatcher) deliver(jobID string, resp *Response, err error) {
	value, ok := d.pending.Load(jobID)
	if !ok {
		d.logger.Debug("no waiting caller for conversation job", "job_id", jobID)
		return
	}
	ch, ok := value.(chan jobResult)
	if !ok {
		d.logger.Error("conversation dispatcher pending map corrupted", "job_id", jobID)
		d.pending.Delete(jobID)
		return
	}
	select {
	case ch <- jobResult{response: resp, err: err}:
	default:
	}
}

type jobType string

const (
	jobTypeStart   jobType = "start"
	jobTypeMessage jobType = "message"
)

type jobPayload struct {
	ID      string         `json:"id"`
	Kind    jobType        `json:"kind"`
	Start   StartRequest   `json:"start,omitempty"`
	Message MessageRequest `json:"message,omitempty"`
}

type jobResult struct {
	response *Response
	err      error
}
