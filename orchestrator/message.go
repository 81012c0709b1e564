package orchestrator

import "time"

// DefaultMessageType is used when a sender does not specify one.
const DefaultMessageType = "text"

// Message is a directed communication record between two agents, optionally
// tied to a task. Messages are immutable except for the Read flag, which
// the receiver flips exactly once.
type Message struct {
	ID            string         `json:"id"`
	SenderID      string         `json:"sender_id"`
	ReceiverID    string         `json:"receiver_id"`
	Content       any            `json:"content"`
	MessageType   string         `json:"message_type"`
	RelatedTaskID string         `json:"related_task_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Read          bool           `json:"read"`
}

func (m *Message) markRead() {
	m.Read = true
}

// clone returns an independent copy of the message; Content is shared.
func (m *Message) clone() *Message {
	out := *m
	if m.Metadata != nil {
		out.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
