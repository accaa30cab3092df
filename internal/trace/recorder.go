package trace

// Sink receives the runner's decision events.
//
// Record must not panic and has no error to report. A nil Sink or a
// NopSink records nothing.
type Sink interface {
	Record(event TraceEvent)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Record(TraceEvent) {}

// SafeRecord hands event to s, swallowing any panic from a faulty sink so
// tracing can never fail a build.
func SafeRecord(s Sink, event TraceEvent) {
	if s == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	s.Record(event)
}

// Recorder collects the events of one invocation. A run is a single
// goroutine, so Recorder is not safe for concurrent use.
type Recorder struct {
	events []TraceEvent
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Record(event TraceEvent) {
	if r == nil {
		return
	}
	r.events = append(r.events, event)
}

// Snapshot returns a copy of the events recorded so far.
func (r *Recorder) Snapshot() []TraceEvent {
	if r == nil {
		return nil
	}
	return append([]TraceEvent(nil), r.events...)
}

// Trace builds the canonical ExecutionTrace for an invocation of mode.
func (r *Recorder) Trace(mode string) ExecutionTrace {
	tr := ExecutionTrace{Mode: mode, Events: r.Snapshot()}
	tr.Canonicalize()
	return tr
}
