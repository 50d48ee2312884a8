package cache

import "sync"

// Message is one pub/sub delivery, shaped the same whether it came from
// Redis or the in-process hub.
type Message struct {
	Channel string
	Payload []byte
}

// Subscription is a live channel subscription. C is closed after Close.
type Subscription struct {
	C chan Message

	close func()
	once  sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(s.close)
}

// PubSubHub is the in-process stand-in for Redis pub/sub used when no Redis
// is configured. Slow subscribers drop messages rather than block publishers.
type PubSubHub struct {
	mu   sync.RWMutex
	subs map[*Subscription]map[string]bool
}

func NewPubSubHub() *PubSubHub {
	return &PubSubHub{subs: make(map[*Subscription]map[string]bool)}
}

func (h *PubSubHub) Subscribe(channels ...string) *Subscription {
	wanted := make(map[string]bool, len(channels))
	for _, ch := range channels {
		wanted[ch] = true
	}

	sub := &Subscription{C: make(chan Message, 64)}
	sub.close = func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
		close(sub.C)
	}

	h.mu.Lock()
	h.subs[sub] = wanted
	h.mu.Unlock()
	return sub
}

func (h *PubSubHub) Publish(channel string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub, wanted := range h.subs {
		if !wanted[channel] {
			continue
		}
		select {
		case sub.C <- Message{Channel: channel, Payload: payload}:
		default:
		}
	}
}
