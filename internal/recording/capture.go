package recording

import "context"

// Acquirer obtains a live media source for the given constraints.
// Acquire may block until the operating environment answers (for example a
// permission prompt); failures should wrap one of the capture sentinels.
type Acquirer interface {
	Acquire(ctx context.Context, c Constraints) (Source, error)
}

// Source is a live capture feed owned by exactly one session.
type Source interface {
	// NewRecorder starts encoding the source. Implementations must deliver
	// events to sink asynchronously, never from inside NewRecorder.
	NewRecorder(sink Sink) (Recorder, error)

	// Release stops every track of the source. It is safe to call twice.
	Release()
}

// Recorder encodes a Source into chunks.
type Recorder interface {
	MediaType() string

	// Stop ends encoding. Repeated calls are no-ops; the sink receives
	// exactly one RecorderStopped once the last chunk has been delivered.
	Stop()
}

// PushedRecorder is implemented by recorders whose chunks arrive from a
// remote client through Session.HandleDataAvailable instead of through the
// Sink handed to NewRecorder. Recorders that do not implement it, or return
// false, own their chunk stream and the session refuses external chunks.
type PushedRecorder interface {
	AcceptsPushedChunks() bool
}

// Sink receives recorder and source events. Session implements it.
type Sink interface {
	HandleDataAvailable(chunk []byte) error
	RecorderStopped()
	RecorderFault(err error)
	OnExternalSourceEnded()
}

// Backend is implemented by acquirers that can describe themselves for
// diagnostics.
type Backend interface {
	Name() string
	SupportedMediaTypes() []string
}
