// Package events implements the channel's event bus (spec §4.2 "Events
// emitted", §5 "Backpressure"): a best-effort fan-out broadcast of gameplay
// events to subscribers in emission order.
package events

import (
	"sync"

	"gochannel/internal/rules"
)

// Kind enumerates the supported event payloads carried by the stream.
type Kind string

const (
	KindMoveMade       Kind = "move_made"
	KindStonesCaptured Kind = "stones_captured"
	KindGameFinished   Kind = "game_finished"
	KindChatMessage    Kind = "chat_message"
)

// MoveMade reports that a move was appended to the chain, local or remote.
type MoveMade struct {
	Move rules.Move
	By   rules.Color
}

// StonesCaptured reports a group removed as a result of the triggering move.
type StonesCaptured struct {
	Positions []rules.Capture
	Player    rules.Color
}

// GameFinished reports the channel's terminal transition (spec I7).
type GameFinished struct {
	Outcome string
}

// ChatMessage carries a free-text message between peers.
type ChatMessage struct {
	From string
	Text string
}

// Event is the envelope delivered to subscribers. Exactly one of the
// payload fields is non-nil, selected by Kind.
type Event struct {
	Sequence       uint64
	Kind           Kind
	MoveMade       *MoveMade
	StonesCaptured *StonesCaptured
	GameFinished   *GameFinished
	ChatMessage    *ChatMessage
}

// Config controls the per-subscriber buffer size.
type Config struct {
	BufferSize int
}

// defaultBufferSize matches spec §5's "bounded ring buffer (default 256)".
const defaultBufferSize = 256

// Stream is the channel's event bus. Each subscriber owns a bounded ring
// buffer; a slow subscriber silently loses its oldest unread event rather
// than blocking the publisher, since the chain — not the event bus — is
// the channel's source of truth (callers reconcile via latest_snapshot).
type Stream struct {
	mu          sync.Mutex
	nextSeq     uint64
	nextSubID   uint64
	bufferSize  int
	subscribers map[uint64]*subscriber
}

type subscriber struct {
	ch chan Event
}

// Subscription exposes the event channel and release hook for one subscriber.
type Subscription struct {
	id     uint64
	stream *Stream
	events <-chan Event
	once   sync.Once
}

// NewStream constructs an event bus using the provided configuration.
func NewStream(cfg Config) *Stream {
	size := cfg.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	return &Stream{
		bufferSize:  size,
		subscribers: make(map[uint64]*subscriber),
	}
}

// Subscribe attaches a new subscriber to the stream (spec `subscribe()`).
func (s *Stream) Subscribe() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	sub := &subscriber{ch: make(chan Event, s.bufferSize)}
	s.subscribers[id] = sub
	return &Subscription{id: id, stream: s, events: sub.ch}
}

// Events exposes the ordered delivery channel for the subscriber.
func (sub *Subscription) Events() <-chan Event {
	if sub == nil {
		return nil
	}
	return sub.events
}

// Close detaches the subscription. Safe to call more than once.
func (sub *Subscription) Close() {
	if sub == nil || sub.stream == nil {
		return
	}
	sub.once.Do(func() {
		sub.stream.unsubscribe(sub.id)
	})
}

func (s *Stream) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subscribers[id]; ok {
		delete(s.subscribers, id)
		close(sub.ch)
	}
}

// PublishMoveMade fans out a MoveMade event and returns its sequence number.
func (s *Stream) PublishMoveMade(mv rules.Move, by rules.Color) uint64 {
	return s.publish(Event{Kind: KindMoveMade, MoveMade: &MoveMade{Move: mv, By: by}})
}

// PublishStonesCaptured fans out a StonesCaptured event.
func (s *Stream) PublishStonesCaptured(positions []rules.Capture, player rules.Color) uint64 {
	return s.publish(Event{Kind: KindStonesCaptured, StonesCaptured: &StonesCaptured{Positions: positions, Player: player}})
}

// PublishGameFinished fans out the terminal GameFinished event.
func (s *Stream) PublishGameFinished(outcome string) uint64 {
	return s.publish(Event{Kind: KindGameFinished, GameFinished: &GameFinished{Outcome: outcome}})
}

// PublishChatMessage fans out a ChatMessage event.
func (s *Stream) PublishChatMessage(from, text string) uint64 {
	return s.publish(Event{Kind: KindChatMessage, ChatMessage: &ChatMessage{From: from, Text: text}})
}

func (s *Stream) publish(ev Event) uint64 {
	s.mu.Lock()
	s.nextSeq++
	ev.Sequence = s.nextSeq
	subs := make([]*subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	seq := s.nextSeq
	s.mu.Unlock()

	for _, sub := range subs {
		deliverDropOldest(sub.ch, ev)
	}
	return seq
}

// deliverDropOldest attempts a non-blocking send; if the buffer is full it
// discards the oldest queued event and retries once, per spec §5's
// "slow subscribers silently drop oldest events".
func deliverDropOldest(ch chan Event, ev Event) {
	select {
	case ch <- ev:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
		// Buffer was refilled concurrently by another publisher; the
		// subscriber simply misses this one too under heavy contention.
	}
}
