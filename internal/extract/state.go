package extract

import "fmt"

type State int

const (
	AwaitingPayloadStart State = iota
	StreamingPayload
	Finished
)

func (s State) String() string {
	switch s {
	case AwaitingPayloadStart:
		return "awaiting_payload_start"
	case StreamingPayload:
		return "streaming_payload"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Kind is the terminal classification carried by an Outcome.
type Kind int

const (
	Completed Kind = iota + 1
	CompletedImplicitEnd
	Failed
)

func (k Kind) String() string {
	switch k {
	case Completed:
		return "completed"
	case CompletedImplicitEnd:
		return "implicit_end"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type Outcome struct {
	Kind         Kind
	BytesWritten int64
	Err          error
}

func (o Outcome) Success() bool {
	return o.Kind == Completed || o.Kind == CompletedImplicitEnd
}
