// Package qatar is a backend-agnostic job queue. Producers push units of
// work (a handler name plus a payload, optionally delayed) onto a
// queue.Queue; workers pop, execute, and acknowledge or retry them.
//
// The queue contract is uniform across backends:
//
//	Push(ctx, handler, payload, delay) → id
//	Pop(ctx, wait) → *job.Job | nil
//	Ack(ctx, id) / Nack(ctx, id, delay) → bool
//	Size(ctx) / Purge(ctx)
//
// Three durable backends ship with the module — Redis (queue/redis),
// Amazon SQS (queue/sqs), and PostgreSQL (queue/postgres) — plus an
// in-memory backend (queue/memory) for testing and development.
//
// # Defining work
//
// Handlers implement job.Handler or, more commonly, are declared as
// typed definitions:
//
//	var SendEmail = job.NewDefinition("send_email",
//	    func(ctx context.Context, input EmailInput) error {
//	        return mailer.Send(input.To, input.Subject, input.Body)
//	    },
//	    job.WithRetries(5),
//	)
//
// Register definitions on a job.Registry, then run a worker.Worker
// against any backend:
//
//	registry := job.NewRegistry()
//	job.RegisterDefinition(registry, SendEmail)
//
//	w := worker.New(q, registry, worker.WithSleepInterval(time.Second))
//	if err := w.Run(ctx); err != nil { ... }
//
// The worker is a single synchronous loop: one job fully completes
// before the next poll. Scale out by running more worker instances;
// concurrent delivery safety is the backend's atomic-claim guarantee.
package qatar
