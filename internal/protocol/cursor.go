package protocol

// StepKind discriminates the three variants of a StreamingStep (spec §3.3).
type StepKind uint8

const (
	Started StepKind = iota
	Ongoing
	Finished
)

func (k StepKind) String() string {
	switch k {
	case Started:
		return "Started"
	case Ongoing:
		return "Ongoing"
	case Finished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// StreamingStep is a tagged pagination cursor over one substate: Started,
// Ongoing(K), or Finished(K?) — K is omitted (zero value) for Started and
// optional for Finished.
type StreamingStep[K any] struct {
	Kind StepKind `json:"kind"`
	Key  K        `json:"key,omitempty"`
}

// NewStarted returns the initial cursor for a substate not yet streamed.
func NewStarted[K any]() StreamingStep[K] {
	return StreamingStep[K]{Kind: Started}
}

// NewOngoing returns a cursor mid-stream at key.
func NewOngoing[K any](key K) StreamingStep[K] {
	return StreamingStep[K]{Kind: Ongoing, Key: key}
}

// NewFinished returns a cursor that has no more pages to emit.
func NewFinished[K any](key K) StreamingStep[K] {
	return StreamingStep[K]{Kind: Finished, Key: key}
}

// IsFinished reports whether the cursor has reached its terminal state.
func (s StreamingStep[K]) IsFinished() bool {
	return s.Kind == Finished
}

// Cursors bundles one StreamingStep per streamed substate, keyed by the
// substate's own pagination key type (spec §3.3, §4.6.3).
type Cursors struct {
	Ledger           StreamingStep[[]byte]
	AsyncPool        StreamingStep[[]byte]
	PoSCycle         StreamingStep[uint64]
	PoSDeferredCreds StreamingStep[uint64]
	ExecutedOps      StreamingStep[[]byte]
	Consensus        StreamingStep[[]byte]
}

// StartedCursors returns the all-Started cursor set a client sends on its
// first AskBootstrapPart (end-to-end scenario 1 in spec §8).
func StartedCursors() Cursors {
	return Cursors{
		Ledger:           NewStarted[[]byte](),
		AsyncPool:        NewStarted[[]byte](),
		PoSCycle:         NewStarted[uint64](),
		PoSDeferredCreds: NewStarted[uint64](),
		ExecutedOps:      NewStarted[[]byte](),
		Consensus:        NewStarted[[]byte](),
	}
}

// GlobalFinished is true (spec §3.3) iff every substate cursor except the
// consensus graph (streamed separately, after final-state convergence) has
// reached Finished.
func (c Cursors) GlobalFinished() bool {
	return c.Ledger.IsFinished() &&
		c.AsyncPool.IsFinished() &&
		c.PoSCycle.IsFinished() &&
		c.PoSDeferredCreds.IsFinished() &&
		c.ExecutedOps.IsFinished()
}
