package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Topic names used across the platform.
const (
	OnlineStatusTopic = "online_status"
)

// Subscriber receives marshalled frames from the hub. Enqueue must not
// block; it reports false when the frame was dropped (closed or saturated
// subscriber), which the hub treats as best-effort delivery.
type Subscriber interface {
	Enqueue(frame []byte) bool
	Close()
}

// Hub is the topic-addressed broadcast fan-out. Messages published to a
// topic reach every current subscriber in publish order; there is no
// ordering guarantee across subscribers and no delivery retry.
type Hub struct {
	log *slog.Logger

	mu     sync.RWMutex
	topics map[string]map[Subscriber]bool
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:    log,
		topics: make(map[string]map[Subscriber]bool),
	}
}

// Subscribe adds the subscriber to a topic.
func (h *Hub) Subscribe(topic string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.topics[topic]; !ok {
		h.topics[topic] = make(map[Subscriber]bool)
	}
	h.topics[topic][sub] = true
}

// Unsubscribe removes the subscriber from a topic. Empty topics are
// deleted so the map does not accumulate finished matches.
func (h *Hub) Unsubscribe(topic string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.topics[topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Drop removes the subscriber from every topic it is registered on.
func (h *Hub) Drop(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, subs := range h.topics {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Publish marshals the payload once and fans it out to every subscriber
// of the topic. Subscribers that cannot take the frame are skipped.
func (h *Hub) Publish(topic string, payload any) {
	frame, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("failed to marshal broadcast payload",
			slog.String("topic", topic), slog.Any("error", err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.topics[topic] {
		if !sub.Enqueue(frame) {
			h.log.Debug("dropped frame for slow subscriber", slog.String("topic", topic))
		}
	}
}

// CloseTopic closes every subscriber of a topic. Used by the join-grace
// guard to tear down sockets of a match nobody ever joined.
func (h *Hub) CloseTopic(topic string) {
	h.mu.Lock()
	subs := h.topics[topic]
	delete(h.topics, topic)
	h.mu.Unlock()

	for sub := range subs {
		sub.Close()
	}
}
