package realtime

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/vango-dev/pulse/pkg/protocol"
)

// Channels is the registry of channels of one client. Channels are created
// on first lookup and live until released.
type Channels struct {
	manager *ConnectionManager
	opts    *Options
	logger  *slog.Logger

	mu       sync.RWMutex
	channels map[string]*Channel
}

func newChannels(manager *ConnectionManager, opts *Options) *Channels {
	return &Channels{
		manager:  manager,
		opts:     opts,
		logger:   opts.Logger,
		channels: make(map[string]*Channel),
	}
}

// Get returns the channel called name, creating it if needed.
func (cs *Channels) Get(name string) *Channel {
	cs.mu.RLock()
	ch, ok := cs.channels[name]
	cs.mu.RUnlock()
	if ok {
		return ch
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if ch, ok := cs.channels[name]; ok {
		return ch
	}
	ch = newChannel(name, cs.manager, cs.opts)
	cs.channels[name] = ch
	return ch
}

// GetWithOptions returns the channel called name with options applied.
func (cs *Channels) GetWithOptions(name string, options ChannelOptions) *Channel {
	ch := cs.Get(name)
	ch.SetOptions(options)
	return ch
}

// Exists reports whether a channel called name has been created.
func (cs *Channels) Exists(name string) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	_, ok := cs.channels[name]
	return ok
}

// Names returns the names of all channels, sorted.
func (cs *Channels) Names() []string {
	cs.mu.RLock()
	names := make([]string, 0, len(cs.channels))
	for name := range cs.channels {
		names = append(names, name)
	}
	cs.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Release detaches the channel and removes it from the registry. Later
// lookups of the same name create a new channel.
func (cs *Channels) Release(name string) {
	cs.mu.Lock()
	ch, ok := cs.channels[name]
	delete(cs.channels, name)
	cs.mu.Unlock()
	if !ok {
		return
	}

	if err := ch.Detach(); err != nil {
		cs.logger.Debug("detach on release failed", "channel", name, "error", err)
	}
	ch.mu.Lock()
	ch.released = true
	ch.mu.Unlock()
	ch.UnsubscribeAll()
	ch.Presence.UnsubscribeAll()
}

func (cs *Channels) snapshot() []*Channel {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	list := make([]*Channel, 0, len(cs.channels))
	for _, ch := range cs.channels {
		list = append(list, ch)
	}
	return list
}

func (cs *Channels) onChannelMessage(msg *protocol.ProtocolMessage) {
	cs.mu.RLock()
	ch, ok := cs.channels[msg.Channel]
	cs.mu.RUnlock()
	if !ok {
		cs.logger.Warn("message for unknown channel", "channel", msg.Channel, "action", msg.Action)
		return
	}
	ch.onProtocolMessage(msg)
}

func (cs *Channels) suspendAll(reason *protocol.ErrorInfo) {
	for _, ch := range cs.snapshot() {
		ch.suspend(reason)
	}
}

func (cs *Channels) reattachAll() {
	for _, ch := range cs.snapshot() {
		ch.reattach()
	}
}
