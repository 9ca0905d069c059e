// Package sqs implements the queue contract on Amazon SQS, delegating
// delay, visibility, and redelivery to the service's native
// primitives.
//
// Usage:
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	q, err := sqsqueue.New(ctx, sqs.NewFromConfig(cfg), "emails")
//
// The message body is the JSON-serialized job record; the id and
// handler name travel as string message attributes so consumers can
// inspect them without deserializing the body.
//
// Divergences from the Redis backend are the service's own semantics:
// approximate ordering, at-least-once redelivery after the native
// visibility timeout, and attempts derived from the body written at
// send time plus one rather than a persisted counter.
package sqs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/vaibhavpandeyvpz/qatar/id"
	"github.com/vaibhavpandeyvpz/qatar/job"
	"github.com/vaibhavpandeyvpz/qatar/queue"
)

// Ensure Queue implements the contract at compile time.
var _ queue.Queue = (*Queue)(nil)

const (
	// maxDelay is the service's DelaySeconds ceiling.
	maxDelay = 900 * time.Second

	// maxWait is the service's long-poll ceiling.
	maxWait = 20 * time.Second

	// maxVisibility is the service's ChangeMessageVisibility ceiling.
	maxVisibility = 12 * time.Hour
)

// Client is the subset of the SQS API this backend uses. *sqs.Client
// satisfies it; tests substitute a fake.
type Client interface {
	SendMessage(ctx context.Context, params *awssqs.SendMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *awssqs.ReceiveMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *awssqs.DeleteMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *awssqs.ChangeMessageVisibilityInput, optFns ...func(*awssqs.Options)) (*awssqs.ChangeMessageVisibilityOutput, error)
	GetQueueUrl(ctx context.Context, params *awssqs.GetQueueUrlInput, optFns ...func(*awssqs.Options)) (*awssqs.GetQueueUrlOutput, error)
	CreateQueue(ctx context.Context, params *awssqs.CreateQueueInput, optFns ...func(*awssqs.Options)) (*awssqs.CreateQueueOutput, error)
	GetQueueAttributes(ctx context.Context, params *awssqs.GetQueueAttributesInput, optFns ...func(*awssqs.Options)) (*awssqs.GetQueueAttributesOutput, error)
	PurgeQueue(ctx context.Context, params *awssqs.PurgeQueueInput, optFns ...func(*awssqs.Options)) (*awssqs.PurgeQueueOutput, error)
}

// Queue is an SQS-backed job queue for a single named queue.
type Queue struct {
	client   Client
	queueURL string
	logger   *slog.Logger

	// handles maps job ids to receipt handles for in-flight
	// deliveries. A redelivery of the same id replaces (invalidates)
	// the previous handle.
	mu      sync.Mutex
	handles map[string]string
}

// Option configures the Queue.
type Option func(*Queue)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// New resolves the queue URL by name, creating the queue if it does
// not exist. The caller owns the SQS client lifecycle.
func New(ctx context.Context, client Client, name string, opts ...Option) (*Queue, error) {
	q := &Queue{
		client:  client,
		logger:  slog.Default(),
		handles: make(map[string]string),
	}
	for _, opt := range opts {
		opt(q)
	}

	got, err := client.GetQueueUrl(ctx, &awssqs.GetQueueUrlInput{
		QueueName: aws.String(name),
	})
	if err == nil {
		q.queueURL = aws.ToString(got.QueueUrl)
		return q, nil
	}

	var notFound *types.QueueDoesNotExist
	if !errors.As(err, &notFound) {
		return nil, fmt.Errorf("qatar/sqs: resolve queue %q: %w", name, err)
	}

	created, err := client.CreateQueue(ctx, &awssqs.CreateQueueInput{
		QueueName: aws.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("qatar/sqs: create queue %q: %w", name, err)
	}
	q.queueURL = aws.ToString(created.QueueUrl)
	return q, nil
}

// Push serializes the record into the message body and defers delivery
// with the native delay field, capped at the service maximum.
func (q *Queue) Push(ctx context.Context, handler string, payload map[string]any, delay time.Duration) (id.JobID, error) {
	now := time.Now()
	availableAt := now
	if delay > 0 {
		if delay > maxDelay {
			delay = maxDelay
		}
		availableAt = now.Add(delay)
	}

	j := job.New(handler, payload, availableAt)
	body, err := json.Marshal(j)
	if err != nil {
		return id.Nil, fmt.Errorf("qatar/sqs: encode job: %w", err)
	}

	input := &awssqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(j.ID.String()),
			},
			"handler": {
				DataType:    aws.String("String"),
				StringValue: aws.String(handler),
			},
		},
	}
	if delay > 0 {
		input.DelaySeconds = int32(delay / time.Second)
	}

	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return id.Nil, fmt.Errorf("qatar/sqs: send message: %w", err)
	}
	return j.ID, nil
}

// Pop receives at most one message, long-polling up to the requested
// wait capped at the service maximum. The receipt handle is retained
// keyed by job id until Ack or Nack.
func (q *Queue) Pop(ctx context.Context, wait time.Duration) (*job.Job, error) {
	if wait > maxWait {
		wait = maxWait
	}
	var waitSeconds int32
	if wait > 0 {
		waitSeconds = int32(wait / time.Second)
	}

	out, err := q.client.ReceiveMessage(ctx, &awssqs.ReceiveMessageInput{
		QueueUrl:              aws.String(q.queueURL),
		MaxNumberOfMessages:   1,
		WaitTimeSeconds:       waitSeconds,
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, fmt.Errorf("qatar/sqs: receive message: %w", err)
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}

	msg := out.Messages[0]
	var j job.Job
	if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &j); err != nil {
		return nil, fmt.Errorf("qatar/sqs: decode job: %w", err)
	}

	// The service does not track this field; the exposed value is the
	// body's send-time count plus this delivery.
	j.Attempts++

	q.mu.Lock()
	q.handles[j.ID.String()] = aws.ToString(msg.ReceiptHandle)
	q.mu.Unlock()

	return &j, nil
}

// Ack deletes the message using the retained receipt handle.
func (q *Queue) Ack(ctx context.Context, jobID id.JobID) bool {
	handle, ok := q.takeHandle(jobID)
	if !ok {
		return false
	}

	_, err := q.client.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(handle),
	})
	if err != nil {
		q.logger.Warn("delete message failed",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// Nack makes the message visible again after delay by changing its
// visibility timeout (0 = immediately visible), releasing the handle.
func (q *Queue) Nack(ctx context.Context, jobID id.JobID, delay time.Duration) bool {
	handle, ok := q.takeHandle(jobID)
	if !ok {
		return false
	}

	if delay < 0 {
		delay = 0
	}
	if delay > maxVisibility {
		delay = maxVisibility
	}

	_, err := q.client.ChangeMessageVisibility(ctx, &awssqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.queueURL),
		ReceiptHandle:     aws.String(handle),
		VisibilityTimeout: int32(delay / time.Second),
	})
	if err != nil {
		q.logger.Warn("change visibility failed",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// Size reads the service's approximate counts for visible and delayed
// messages. Returns 0 on query failure.
func (q *Queue) Size(ctx context.Context) int {
	out, err := q.client.GetQueueAttributes(ctx, &awssqs.GetQueueAttributesInput{
		QueueUrl: aws.String(q.queueURL),
		AttributeNames: []types.QueueAttributeName{
			types.QueueAttributeNameApproximateNumberOfMessages,
			types.QueueAttributeNameApproximateNumberOfMessagesDelayed,
		},
	})
	if err != nil {
		return 0
	}

	total := 0
	for _, name := range []types.QueueAttributeName{
		types.QueueAttributeNameApproximateNumberOfMessages,
		types.QueueAttributeNameApproximateNumberOfMessagesDelayed,
	} {
		if v, ok := out.Attributes[string(name)]; ok {
			n, _ := strconv.Atoi(v) //nolint:errcheck // best-effort parse of service counters
			total += n
		}
	}
	return total
}

// Purge issues the service's native purge. Failures are swallowed.
func (q *Queue) Purge(ctx context.Context) {
	_, err := q.client.PurgeQueue(ctx, &awssqs.PurgeQueueInput{
		QueueUrl: aws.String(q.queueURL),
	})
	if err != nil {
		q.logger.Warn("purge failed", slog.String("error", err.Error()))
	}
}

// takeHandle removes and returns the receipt handle for a job id.
func (q *Queue) takeHandle(jobID id.JobID) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	handle, ok := q.handles[jobID.String()]
	if ok {
		delete(q.handles, jobID.String())
	}
	return handle, ok
}
