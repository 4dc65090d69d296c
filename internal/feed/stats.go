package feed

import (
	"sync/atomic"
	"time"
)

// Stats are the ingestion counters exposed on the status surface.
type Stats struct {
	messages    atomic.Uint64
	malformed   atomic.Uint64
	lastMessage atomic.Int64 // unix nanos, 0 when none
	connected   atomic.Bool
	pollPasses  atomic.Uint64
	lastPoll    atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	MessagesProcessed  uint64     `json:"messages_processed"`
	MalformedMessages  uint64     `json:"malformed_messages"`
	LastMessageTime    *time.Time `json:"last_message_time"`
	WebsocketConnected bool       `json:"websocket_connected"`
	PollPasses         uint64     `json:"poll_passes"`
	LastPollTime       *time.Time `json:"last_poll_time,omitempty"`
}

// MessageReceived counts one frame and returns the running total.
func (s *Stats) MessageReceived(at time.Time) uint64 {
	s.lastMessage.Store(at.UnixNano())
	return s.messages.Add(1)
}

func (s *Stats) Malformed() { s.malformed.Add(1) }

func (s *Stats) SetConnected(v bool) { s.connected.Store(v) }

func (s *Stats) PollCompleted(at time.Time) {
	s.lastPoll.Store(at.UnixNano())
	s.pollPasses.Add(1)
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		MessagesProcessed:  s.messages.Load(),
		MalformedMessages:  s.malformed.Load(),
		LastMessageTime:    unixPtr(s.lastMessage.Load()),
		WebsocketConnected: s.connected.Load(),
		PollPasses:         s.pollPasses.Load(),
		LastPollTime:       unixPtr(s.lastPoll.Load()),
	}
}

func unixPtr(n int64) *time.Time {
	if n == 0 {
		return nil
	}
	t := time.Unix(0, n).UTC()
	return &t
}
