package realtime

import (
	"log/slog"

	perrors "github.com/vango-dev/pulse/internal/errors"
	"github.com/vango-dev/pulse/pkg/protocol"
)

// PendingAckQueue holds sent envelopes until the service acknowledges them.
// startSerial is the msgSerial of the oldest entry; it only increases and
// entries leave strictly from the front.
//
// PendingAckQueue is not safe for concurrent use. The connection manager
// guards it with its own lock and resolves listeners after releasing it.
type PendingAckQueue struct {
	queue       []*QueuedMessage
	startSerial int64
	logger      *slog.Logger
}

// NewPendingAckQueue creates an empty queue expecting startSerial next.
func NewPendingAckQueue(startSerial int64, logger *slog.Logger) *PendingAckQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &PendingAckQueue{startSerial: startSerial, logger: logger}
}

// Push appends an entry. Its envelope must carry the next serial.
func (p *PendingAckQueue) Push(qm *QueuedMessage) {
	p.queue = append(p.queue, qm)
}

// Len returns the number of unacknowledged entries.
func (p *PendingAckQueue) Len() int {
	return len(p.queue)
}

// StartSerial returns the serial expected of the oldest entry.
func (p *PendingAckQueue) StartSerial() int64 {
	return p.startSerial
}

// Ack resolves the entries in [serial, serial+count) successfully. Entries
// skipped ahead of serial are failed with reason.
func (p *PendingAckQueue) Ack(serial int64, count int, reason *protocol.ErrorInfo) {
	acked, nacked := p.ack(serial, count)
	resolveAll(p.logger, nacked, nackReason(reason))
	resolveAll(p.logger, acked, nil)
}

// Nack fails the entries up to serial+count with reason, or a generic
// internal error when reason is nil.
func (p *PendingAckQueue) Nack(serial int64, count int, reason *protocol.ErrorInfo) {
	resolveAll(p.logger, p.nack(serial, count), nackReason(reason))
}

func (p *PendingAckQueue) ack(serial int64, count int) (acked, nacked []*QueuedMessage) {
	serial, count = p.clip(serial, count)
	if serial > p.startSerial {
		gap := int(serial - p.startSerial)
		p.logger.Warn("ack ahead of expected serial",
			"serial", serial,
			"expected", p.startSerial,
			"gap", gap)
		nacked = p.take(gap)
		p.startSerial = serial
	}
	acked = p.take(count)
	p.startSerial += int64(count)
	return acked, nacked
}

func (p *PendingAckQueue) nack(serial int64, count int) []*QueuedMessage {
	serial, count = p.clip(serial, count)
	if serial > p.startSerial {
		count += int(serial - p.startSerial)
	}
	nacked := p.take(count)
	p.startSerial += int64(count)
	return nacked
}

// clip drops the part of a range that lies behind startSerial. A negative
// result is clamped to zero.
func (p *PendingAckQueue) clip(serial int64, count int) (int64, int) {
	if count < 0 {
		p.logger.Warn("negative ack count", "serial", serial, "count", count)
		count = 0
	}
	if serial < p.startSerial {
		behind := p.startSerial - serial
		p.logger.Warn("ack behind expected serial",
			"serial", serial,
			"expected", p.startSerial)
		if int64(count) < behind {
			count = 0
		} else {
			count -= int(behind)
		}
		serial = p.startSerial
	}
	return serial, count
}

func (p *PendingAckQueue) take(n int) []*QueuedMessage {
	if n > len(p.queue) {
		n = len(p.queue)
	}
	if n <= 0 {
		return nil
	}
	taken := make([]*QueuedMessage, n)
	copy(taken, p.queue[:n])
	clear(p.queue[:n])
	p.queue = p.queue[n:]
	return taken
}

// reset empties the queue and restarts serials at startSerial. It returns
// the entries that were still waiting.
func (p *PendingAckQueue) reset(startSerial int64) []*QueuedMessage {
	items := p.queue
	p.queue = nil
	p.startSerial = startSerial
	return items
}

func nackReason(reason *protocol.ErrorInfo) *protocol.ErrorInfo {
	if reason != nil {
		return reason
	}
	return perrors.New(protocol.CodeInternal)
}
