// Package job defines the job record, the handler contract, typed
// definitions, and the handler registry.
//
// # Job Record
//
// A [Job] carries id, handler name, opaque payload, delivery count, and
// availability time between producer and worker:
//
//	push → (delayed ⇄ ready) → pop (attempts+1) → ack | nack
//
// # Handler contract
//
// [Handler] is the polymorphic unit the worker invokes:
// Handle runs the work, Failed fires once after the retry budget is
// exhausted, Retries and RetryDelay shape the budget. Defaults are
// 3 retries and a 60 second delay.
//
// # Typed definitions
//
// Most handlers are declared as a [Definition] with a typed payload:
//
//	var Resize = job.NewDefinition("image.resize",
//	    func(ctx context.Context, input ResizeInput) error {
//	        return resize(input.Path, input.Width)
//	    },
//	    job.WithRetries(5),
//	    job.WithBackoff(backoff.NewExponential(time.Second, time.Minute)),
//	).OnFailed(func(ctx context.Context, err error, input ResizeInput) {
//	    alert(err, input.Path)
//	})
//
// # Registry
//
// [Registry] maps handler names to factories; every resolution
// constructs a fresh handler instance. Register definitions at startup
// via [RegisterDefinition], or bind a hand-written Handler with
// Register.
package job
