package sentiment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sjawhar/call-insights/internal/llm"
)

type Label string

const (
	Positive Label = "Positive"
	Negative Label = "Negative"
	Neutral  Label = "Neutral"
)

const systemPrompt = "You label the sentiment of customer call transcripts."

// ClientFactory builds an LLM client for a provider/model pair.
type ClientFactory func(provider, model string) (llm.Client, error)

// Observer is told which path produced each label.
type Observer interface {
	ObserveSentiment(label Label, source string)
}

const (
	SourceLLM       = "llm"
	SourceHeuristic = "heuristic"
	SourceEmpty     = "empty"
)

// Classifier labels text with an LLM when one is configured and falls back
// to keyword matching when it is not, or when the call fails.
type Classifier struct {
	client   llm.Client
	timeout  time.Duration
	observer Observer
	logger   *slog.Logger
}

// New builds a classifier for model ("provider/model"). An empty model, or
// one the factory rejects, leaves the classifier on the keyword heuristic.
func New(model string, factory ClientFactory, observer Observer, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Classifier{timeout: 10 * time.Second, observer: observer, logger: logger}
	if model == "" || factory == nil {
		return c
	}

	provider, name, err := llm.ParseModel(model)
	if err != nil {
		logger.Warn("sentiment: using keyword heuristic", "reason", "parse model failed", "error", err)
		return c
	}
	client, err := factory(provider, name)
	if err != nil {
		logger.Warn("sentiment: using keyword heuristic", "reason", "create client failed", "error", err)
		return c
	}
	c.client = client
	return c
}

// NewWithClient is used when the caller already holds a client.
func NewWithClient(client llm.Client, observer Observer, logger *slog.Logger) *Classifier {
	c := New("", nil, observer, logger)
	c.client = client
	return c
}

// Classify never fails: blank text is Neutral and any LLM problem degrades
// to the heuristic.
func (c *Classifier) Classify(ctx context.Context, text string) Label {
	text = strings.TrimSpace(text)
	if text == "" {
		c.observe(Neutral, SourceEmpty)
		return Neutral
	}
	if c == nil || c.client == nil {
		return c.heuristic(text)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Analyze the sentiment of this text: '%s'. Respond only with Positive, Negative, or Neutral.", text)
	resp, err := c.client.Complete(callCtx, llm.Request{System: systemPrompt, Prompt: prompt})
	if err != nil {
		c.logger.Warn("sentiment: falling back to heuristic", "reason", "llm complete failed", "error", err)
		return c.heuristic(text)
	}

	label, ok := ParseLabel(resp)
	if !ok {
		c.logger.Warn("sentiment: falling back to heuristic", "reason", "unrecognized label", "response", resp)
		return c.heuristic(text)
	}
	c.observe(label, SourceLLM)
	return label
}

func (c *Classifier) heuristic(text string) Label {
	label := Heuristic(text)
	c.observe(label, SourceHeuristic)
	return label
}

func (c *Classifier) observe(label Label, source string) {
	if c != nil && c.observer != nil {
		c.observer.ObserveSentiment(label, source)
	}
}

var (
	negativeCues = []string{"not happy", "angry", "upset", "frustrat"}
	positiveCues = []string{"thank", "great", "happy", "good", "satisfied"}
)

// Heuristic labels text by keyword. Negative cues are checked first so that
// "not happy" is not read as happy.
func Heuristic(text string) Label {
	lower := strings.ToLower(text)
	for _, cue := range negativeCues {
		if strings.Contains(lower, cue) {
			return Negative
		}
	}
	for _, cue := range positiveCues {
		if strings.Contains(lower, cue) {
			return Positive
		}
	}
	return Neutral
}

// ParseLabel finds the label in a free-form model answer such as
// "Negative." or "sentiment: positive".
func ParseLabel(s string) (Label, bool) {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, label := range []Label{Negative, Positive, Neutral} {
		if strings.HasPrefix(lower, strings.ToLower(string(label))) {
			return label, true
		}
	}
	for _, label := range []Label{Negative, Positive, Neutral} {
		if strings.Contains(lower, strings.ToLower(string(label))) {
			return label, true
		}
	}
	return "", false
}
