package emit

// Emitter receives observability events from workflow execution.
//
// The engine reports everything it does through an Emitter: run lifecycle,
// node completion, condition evaluation failures and step-limit exhaustion.
// Implementations decide where events go (logs, traces, memory).
//
// Implementations should be:
//   - Non-blocking: the execution loop calls Emit inline
//   - Thread-safe: runs on different goroutines share one emitter
//   - Resilient: Emit must not panic
type Emitter interface {
	// Emit sends an observability event to the configured backend.
	Emit(event Event)
}

// Multi fans an event out to every non-nil emitter in order.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(event Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(event)
		}
	}
}
