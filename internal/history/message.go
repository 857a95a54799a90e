package history

import (
	"fmt"
	"time"
)

// Well-known speakers. Role answers use the role name itself.
const (
	SpeakerUser   = "user"
	SpeakerSystem = "system"
)

// Message is one immutable turn in the conversation. Timestamps come from
// the store's clock on append, but loaded sessions may carry arbitrary
// values; two messages with the same timestamp are treated as the same
// message when sessions merge.
type Message struct {
	Speaker   string    `json:"speaker"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Render formats the message for the human-readable transcript.
func (m Message) Render() string {
	return fmt.Sprintf("[%s] %s: %s", m.Timestamp.Format("2006-01-02 15:04:05"), m.Speaker, m.Content)
}
