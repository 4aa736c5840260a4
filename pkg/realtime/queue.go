package realtime

import (
	"log/slog"

	"github.com/vango-dev/pulse/pkg/protocol"
)

// QueuedMessage is an envelope waiting to be sent or acknowledged, together
// with the listener for its outcome.
type QueuedMessage struct {
	Msg      *protocol.ProtocolMessage
	Listener CompletionListener

	merged bool

	// sent is set once the envelope has been handed to a transport. Sent
	// envelopes never accept merges, even after being requeued.
	sent bool
}

// IsMerged reports whether other publishes were folded into this entry.
func (q *QueuedMessage) IsMerged() bool {
	return q.merged
}

// messageQueue is a FIFO of envelopes. Pushing an envelope that is
// compatible with the last unsent entry merges the two.
type messageQueue struct {
	items  []*QueuedMessage
	logger *slog.Logger
}

// push appends msg or merges it into the tail. It reports whether a merge
// happened.
func (q *messageQueue) push(msg *protocol.ProtocolMessage, listener CompletionListener) bool {
	if n := len(q.items); n > 0 {
		last := q.items[n-1]
		if !last.sent && last.Msg.Merge(msg) {
			mc, ok := last.Listener.(*CompletionMulticaster)
			if !ok || !last.merged {
				mc = NewCompletionMulticaster(q.logger, last.Listener)
				last.Listener = mc
				last.merged = true
			}
			mc.Add(listener)
			return true
		}
	}
	q.items = append(q.items, &QueuedMessage{Msg: msg, Listener: listener})
	return false
}

// pushFront puts items ahead of everything already queued, keeping their
// relative order.
func (q *messageQueue) pushFront(items ...*QueuedMessage) {
	if len(items) == 0 {
		return
	}
	q.items = append(append(make([]*QueuedMessage, 0, len(items)+len(q.items)), items...), q.items...)
}

// drain removes and returns every entry.
func (q *messageQueue) drain() []*QueuedMessage {
	items := q.items
	q.items = nil
	return items
}

func (q *messageQueue) len() int {
	return len(q.items)
}

// resolveAll completes every entry with err.
func resolveAll(logger *slog.Logger, items []*QueuedMessage, err *protocol.ErrorInfo) {
	for _, qm := range items {
		complete(logger, qm.Listener, err)
	}
}
