package stage

import (
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/dify"
)

const (
	// Answers shorter than this carry too little signal to move the stage.
	minContentRunes = 30
	// Accumulated answers longer than this outrank node metadata.
	accumulatedContentRunes = 50
)

// Classifier maps answer text and engine events to pipeline stages. It is
// safe for concurrent use; the keyword set can be swapped at any time.
type Classifier struct {
	kw atomic.Pointer[Keywords]
}

func NewClassifier(kw Keywords) *Classifier {
	c := &Classifier{}
	c.SetKeywords(kw)
	return c
}

func (c *Classifier) SetKeywords(kw Keywords) {
	n := kw.normalized()
	c.kw.Store(&n)
}

func (c *Classifier) Keywords() Keywords {
	return *c.kw.Load()
}

// ByContent classifies answer text. Checks run from the most terminal stage
// down and the first match wins, so an answer that both reviews and
// concludes resolves to result.
func (c *Classifier) ByContent(text string, mode Mode, last Key) Key {
	if text == "" {
		return fallback(last)
	}
	kw := c.kw.Load()
	normalized := strings.ToLower(text)

	switch {
	case containsAny(normalized, kw.Result.For(ParseMode(string(mode)))):
		return KeyResult
	case containsAny(normalized, kw.Review):
		return KeyReview
	case containsAny(normalized, kw.Check):
		return KeyCheck
	case containsAny(normalized, kw.Deep):
		return KeyDeep
	case containsAny(normalized, kw.Preliminary):
		return KeyPreliminary
	}
	if utf8.RuneCountInString(normalized) < minContentRunes {
		return fallback(last)
	}
	return next(last)
}

// ByEvent classifies one engine event. accumulated is the answer text
// streamed so far in the current turn.
func (c *Classifier) ByEvent(ev dify.Event, last Key, mode Mode, accumulated string) Key {
	switch e := ev.(type) {
	case *dify.WorkflowStarted:
		return KeyReceive
	case *dify.WorkflowFinished:
		return KeyResult
	case *dify.Message:
		if content := firstNonEmpty(e.Answer, e.Content, accumulated); content != "" {
			return c.ByContent(content, mode, last)
		}
	}

	if utf8.RuneCountInString(accumulated) > accumulatedContentRunes {
		return c.ByContent(accumulated, mode, last)
	}

	node := dify.NodeOf(ev)
	title := strings.ToLower(node.Title + " " + node.Type)
	kw := c.kw.Load()
	switch {
	case containsAny(title, kw.Node.Preliminary):
		return KeyPreliminary
	case containsAny(title, kw.Node.Deep):
		return KeyDeep
	case containsAny(title, kw.Node.Check):
		return KeyCheck
	case containsAny(title, kw.Node.Review):
		return KeyReview
	case containsAny(title, kw.Node.Result):
		return KeyResult
	}
	return fallback(last)
}

// StatusFor derives the stage status an event implies.
func StatusFor(ev dify.Event) Status {
	switch e := ev.(type) {
	case *dify.WorkflowStarted:
		// The receive stage is done as soon as the run starts.
		return StatusSuccess
	case *dify.NodeStarted:
		return StatusRunning
	case *dify.NodeFinished:
		return outcomeStatus(e.Outcome)
	case *dify.WorkflowFinished:
		return outcomeStatus(e.Outcome)
	}
	return StatusPending
}

func outcomeStatus(o dify.Outcome) Status {
	if o.Failed() {
		return StatusFailed
	}
	return StatusSuccess
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
