package realtime

import (
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/vango-dev/pulse/pkg/protocol"
)

// CompletionListener receives the outcome of an asynchronous operation such
// as a publish or a presence update. err is nil on success.
type CompletionListener interface {
	OnComplete(err *protocol.ErrorInfo)
}

// CompletionFunc adapts a function to CompletionListener.
type CompletionFunc func(err *protocol.ErrorInfo)

// OnComplete implements CompletionListener.
func (f CompletionFunc) OnComplete(err *protocol.ErrorInfo) { f(err) }

// CompletionMulticaster delivers one outcome to several listeners. A panic in
// one listener is logged and does not stop delivery to the others.
type CompletionMulticaster struct {
	listeners []CompletionListener
	logger    *slog.Logger
}

// NewCompletionMulticaster creates a multicaster over the non-nil listeners.
func NewCompletionMulticaster(logger *slog.Logger, listeners ...CompletionListener) *CompletionMulticaster {
	m := &CompletionMulticaster{logger: logger}
	for _, l := range listeners {
		m.Add(l)
	}
	return m
}

// Add appends a listener. Nil listeners are ignored.
func (m *CompletionMulticaster) Add(l CompletionListener) {
	if l == nil {
		return
	}
	m.listeners = append(m.listeners, l)
}

// Len returns the number of listeners.
func (m *CompletionMulticaster) Len() int {
	return len(m.listeners)
}

// OnComplete implements CompletionListener.
func (m *CompletionMulticaster) OnComplete(err *protocol.ErrorInfo) {
	for _, l := range m.listeners {
		complete(m.logger, l, err)
	}
}

// complete resolves l with err. A nil listener is a no-op.
func complete(logger *slog.Logger, l CompletionListener, err *protocol.ErrorInfo) {
	if l == nil {
		return
	}
	safeCall(logger, "completion", func() { l.OnComplete(err) })
}

// safeCall runs fn with panic recovery.
func safeCall(logger *slog.Logger, kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if logger == nil {
				logger = slog.Default()
			}
			logger.Error("listener panic",
				"listener", kind,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

// emitter is a set of listeners for one kind of event. Emission works on a
// snapshot, so listeners may register or remove themselves while being
// called.
type emitter[T any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries []emitterEntry[T]
	kind    string
	logger  *slog.Logger
}

type emitterEntry[T any] struct {
	id   uint64
	fn   func(T)
	once bool
}

func newEmitter[T any](logger *slog.Logger, kind string) *emitter[T] {
	return &emitter[T]{logger: logger, kind: kind}
}

// on registers fn and returns a function that removes it.
func (e *emitter[T]) on(fn func(T)) (off func()) {
	return e.add(fn, false)
}

// once registers fn for a single emission.
func (e *emitter[T]) once(fn func(T)) (off func()) {
	return e.add(fn, true)
}

func (e *emitter[T]) add(fn func(T), once bool) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.entries = append(e.entries, emitterEntry[T]{id: id, fn: fn, once: once})
	e.mu.Unlock()
	return func() { e.remove(id) }
}

func (e *emitter[T]) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, entry := range e.entries {
		if entry.id == id {
			e.entries = append(e.entries[:i], e.entries[i+1:]...)
			return
		}
	}
}

func (e *emitter[T]) emit(v T) {
	e.mu.Lock()
	snapshot := make([]emitterEntry[T], len(e.entries))
	copy(snapshot, e.entries)
	kept := e.entries[:0]
	for _, entry := range e.entries {
		if !entry.once {
			kept = append(kept, entry)
		}
	}
	clear(e.entries[len(kept):])
	e.entries = kept
	e.mu.Unlock()

	for _, entry := range snapshot {
		safeCall(e.logger, e.kind, func() { entry.fn(v) })
	}
}

func (e *emitter[T]) clear() {
	e.mu.Lock()
	e.entries = nil
	e.mu.Unlock()
}

func (e *emitter[T]) len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

// callbacks defers work until a lock is released.
type callbacks []func()

func (cb *callbacks) add(fn func()) {
	*cb = append(*cb, fn)
}

func (cb callbacks) run() {
	for _, fn := range cb {
		fn()
	}
}

// Subscription is a registered message or presence listener.
type Subscription struct {
	offs []func()
	once sync.Once
}

// Unsubscribe removes the listener. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		for _, off := range s.offs {
			off()
		}
	})
}
