// Package worker implements the Task Worker: it consumes check_email tasks
// from the broker, runs the verification pipeline, and routes the result to
// a single-shot RPC reply or a bulk result row, acknowledging or requeuing
// the delivery according to a fixed state machine.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"mailcheck"
	"mailcheck/internal/queue"
	"mailcheck/internal/store"
	"mailcheck/verdict"
)

// TaskError is the worker-boundary error taxonomy — distinct from the
// pipeline's own per-field errors, which never abort the pipeline.
type TaskError struct {
	kind    taskErrorKind
	message string
	retry   time.Duration
}

type taskErrorKind int

const (
	taskErrBroker taskErrorKind = iota
	taskErrWebhook
	taskErrThrottle
)

func (e *TaskError) Error() string { return e.message }

// StatusCode returns the HTTP status a single-shot caller should see for
// this error: 429 for throttle, 500 for everything else.
func (e *TaskError) StatusCode() int {
	if e.kind == taskErrThrottle {
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func newThrottleError(wait time.Duration) *TaskError {
	return &TaskError{kind: taskErrThrottle, message: fmt.Sprintf("worker at full capacity, wait %s", wait), retry: wait}
}

func newBrokerError(err error) *TaskError {
	return &TaskError{kind: taskErrBroker, message: fmt.Sprintf("broker error: %s", err)}
}

// singleShotReply is the RPC reply envelope: {"Ok": <CheckEmailOutput JSON
// bytes>} on success, or {"Err": [message, status_code]} on failure. Exactly
// one of the two fields is ever set.
type singleShotReply struct {
	Ok  json.RawMessage `json:"Ok,omitempty"`
	Err *[2]interface{} `json:"Err,omitempty"`
}

func replyFor(out *mailcheck.CheckEmailOutput, taskErr *TaskError) ([]byte, error) {
	if taskErr != nil {
		return json.Marshal(singleShotReply{Err: &[2]interface{}{taskErr.Error(), taskErr.StatusCode()}})
	}
	outJSON, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return json.Marshal(singleShotReply{Ok: outJSON})
}

// webhookPayload is the body POSTed to a task's webhook.on_each_email.url.
type webhookPayload struct {
	Result *mailcheck.CheckEmailOutput `json:"result"`
	Extra  interface{}                 `json:"extra"`
}

// Pool runs a fixed-size set of goroutines, each consuming deliveries from
// one AMQP channel and driving them through the pipeline.
type Pool struct {
	conn        *queue.Connection
	store       *store.Store
	pipelineCfg mailcheck.Config
	backendName string
	httpClient  *http.Client
	// throttle bounds only single-shot tasks; bulk tasks never throttle, they
	// wait in the broker queue instead.
	throttle *rate.Limiter
	log      *logrus.Logger
}

// NewPool wires the collaborators a worker pool needs: the broker
// connection, the bulk result store, the pipeline config, and a throttle
// limiter for single-shot tasks.
func NewPool(conn *queue.Connection, st *store.Store, pipelineCfg mailcheck.Config, backendName string, throttle *rate.Limiter, log *logrus.Logger) *Pool {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pool{
		conn:        conn,
		store:       st,
		pipelineCfg: pipelineCfg,
		backendName: backendName,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		throttle:    throttle,
		log:         log,
	}
}

// Run launches concurrency consumer goroutines, each with its own delivery
// stream off the shared channel, and blocks until ctx is cancelled and every
// goroutine has drained its current delivery.
func (p *Pool) Run(ctx context.Context, concurrency int) error {
	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		tag := fmt.Sprintf("worker-%d-%s", i, uuid.New().String())
		deliveries, err := p.conn.Consume(tag)
		if err != nil {
			return fmt.Errorf("consume (%s): %w", tag, err)
		}

		wg.Add(1)
		go func(workerID int, deliveries <-chan amqp.Delivery) {
			defer wg.Done()
			p.consumeLoop(ctx, workerID, deliveries)
		}(i, deliveries)
	}

	wg.Wait()
	return nil
}

func (p *Pool) consumeLoop(ctx context.Context, workerID int, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			p.log.WithField("worker_id", workerID).Info("shutdown signal received, exiting")
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			p.handleDelivery(ctx, workerID, d)
		}
	}
}

// handleDelivery implements the Received → Processing → {AckAndReply |
// AckAndStore | RejectRequeue} state machine.
func (p *Pool) handleDelivery(ctx context.Context, workerID int, d amqp.Delivery) {
	var task queue.Task
	if err := json.Unmarshal(d.Body, &task); err != nil {
		// Poison message: reject without requeue, never RejectRequeue.
		p.log.WithFields(logrus.Fields{"worker_id": workerID, "err": err}).Warn("malformed task body, rejecting without requeue")
		if err := p.conn.RejectPoison(d); err != nil {
			p.log.WithError(err).Error("failed to reject poison message")
		}
		return
	}

	out, taskErr := p.process(ctx, d, task)

	if taskErr == nil && out != nil && out.IsReachable == verdict.Unknown && !d.Redelivered {
		p.requeue(d, task, "unknown verdict")
		return
	}
	// Throttle errors skip the requeue: a throttled single-shot caller gets
	// its 429 reply immediately rather than waiting out a redelivery.
	if taskErr != nil && taskErr.kind != taskErrThrottle && !d.Redelivered {
		p.requeue(d, task, taskErr.Error())
		return
	}

	// Happy path (including the second pass through a previously-redelivered
	// Unknown/error outcome, which acks regardless — the broker's redelivered
	// flag only allows one requeue, so a second pass never requeues again).
	if err := p.conn.Ack(d); err != nil {
		p.log.WithError(err).Error("failed to ack delivery")
		return
	}

	if task.IsSingleShot() {
		p.replySingleShot(ctx, d, out, taskErr)
	} else {
		p.persistBulk(ctx, task, out, taskErr)
	}

	p.log.WithFields(logrus.Fields{
		"worker_id": workerID,
		"job_id":    task.JobID,
		"backend":   p.backendName,
	}).Info("task done")
}

func (p *Pool) requeue(d amqp.Delivery, task queue.Task, reason string) {
	if err := p.conn.RejectRequeue(d); err != nil {
		p.log.WithError(err).Error("failed to requeue delivery")
		return
	}
	p.log.WithFields(logrus.Fields{"job_id": task.JobID, "reason": reason}).Info("requeued message")
}

// process runs the pipeline and fires the per-task webhook unconditionally
// afterwards. Webhook failures are logged and never change the task outcome.
func (p *Pool) process(ctx context.Context, d amqp.Delivery, task queue.Task) (*mailcheck.CheckEmailOutput, *TaskError) {
	if task.IsSingleShot() && p.throttle != nil {
		if !p.throttle.Allow() {
			return nil, newThrottleError(time.Second)
		}
	}

	inputBytes, err := json.Marshal(task.Input)
	if err != nil {
		return nil, newBrokerError(err)
	}
	var input mailcheck.CheckEmailInput
	if err := json.Unmarshal(inputBytes, &input); err != nil {
		return nil, newBrokerError(err)
	}

	out := mailcheck.CheckEmail(ctx, input, p.pipelineCfg)

	if task.Webhook != nil && task.Webhook.OnEachEmail != nil {
		p.fireWebhook(ctx, task.Webhook.OnEachEmail.URL, task.Webhook.OnEachEmail.Extra, &out)
	}

	return &out, nil
}

func (p *Pool) fireWebhook(ctx context.Context, url string, extra interface{}, out *mailcheck.CheckEmailOutput) {
	body, err := json.Marshal(webhookPayload{Result: out, Extra: extra})
	if err != nil {
		p.log.WithError(err).Warn("failed to marshal webhook payload")
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		p.log.WithError(err).Warn("failed to build webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-reacher-secret", os.Getenv("RCH_HEADER_SECRET"))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.log.WithFields(logrus.Fields{"url": url, "err": err}).Warn("webhook request failed")
		return
	}
	defer resp.Body.Close()
	p.log.WithFields(logrus.Fields{"url": url, "status": resp.StatusCode}).Debug("webhook delivered")
}

func (p *Pool) replySingleShot(ctx context.Context, d amqp.Delivery, out *mailcheck.CheckEmailOutput, taskErr *TaskError) {
	if d.ReplyTo == "" || d.CorrelationId == "" {
		p.log.Error("single-shot task missing reply_to or correlation_id, dropping reply")
		return
	}

	payload, err := replyFor(out, taskErr)
	if err != nil {
		p.log.WithError(err).Error("failed to marshal single-shot reply")
		return
	}

	if err := p.conn.PublishReply(ctx, d.ReplyTo, d.CorrelationId, payload); err != nil {
		p.log.WithError(err).Error("failed to publish single-shot reply")
	}
}

func (p *Pool) persistBulk(ctx context.Context, task queue.Task, out *mailcheck.CheckEmailOutput, taskErr *TaskError) {
	if p.store == nil || task.JobID == nil {
		return
	}

	var err error
	if taskErr != nil {
		err = p.store.SaveFailure(ctx, task, *task.JobID, p.backendName, errors.New(taskErr.Error()))
	} else {
		err = p.store.SaveSuccess(ctx, task, *task.JobID, p.backendName, out)
	}
	if err != nil {
		p.log.WithError(err).Error("failed to persist bulk result")
	}
}
