package transcribe

import (
	"strings"
	"time"
)

// Utterance is the text recognized for one flushed buffer of a session.
type Utterance struct {
	SessionID string    `json:"session_id"`
	Chunk     int       `json:"chunk"`
	Text      string    `json:"text"`
	Sentiment string    `json:"sentiment"`
	Timestamp time.Time `json:"timestamp"`
}

// SplitSentences breaks a transcript on sentence boundaries (". ") and
// drops empty pieces.
func SplitSentences(text string) []string {
	var sentences []string
	for _, part := range strings.Split(text, ". ") {
		if s := strings.TrimSpace(part); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}
