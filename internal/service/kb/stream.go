package kb

import (
	"io"

	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
)

// Stream delivers generated answer fragments. Recv returns io.EOF once the
// managed service signals completion.
type Stream struct {
	recv    func() (string, error)
	closeFn func() error
}

// NewStream adapts fragment delivery callbacks into a Stream.
func NewStream(recv func() (string, error), closeFn func() error) *Stream {
	return &Stream{recv: recv, closeFn: closeFn}
}

// Recv returns the next text fragment, or io.EOF at end of stream.
func (s *Stream) Recv() (string, error) {
	return s.recv()
}

// Close releases the underlying event stream.
func (s *Stream) Close() error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

// wrapEventStream exposes the SDK event stream as a Stream of text
// fragments. Citation and guardrail events carry no answer text and are
// skipped.
func wrapEventStream(es *bedrockagentruntime.RetrieveAndGenerateStreamEventStream) *Stream {
	events := es.Events()

	recv := func() (string, error) {
		for {
			event, ok := <-events
			if !ok {
				if err := es.Err(); err != nil {
					return "", err
				}
				return "", io.EOF
			}

			output, ok := event.(*types.RetrieveAndGenerateStreamResponseOutputMemberOutput)
			if !ok {
				continue
			}
			if output.Value.Text == nil {
				continue
			}
			return *output.Value.Text, nil
		}
	}

	return NewStream(recv, es.Close)
}
