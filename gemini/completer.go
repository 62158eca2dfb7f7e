package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nicebartender/npcbridge/convo"
)

const DefaultTimeout = 12 * time.Second

// Fixed replies used whenever the service cannot produce one.
const (
	FallbackApology   = "Sorry, I don't know what to say right now."
	FallbackMalformed = "Hmm."
	FallbackTransport = "Hmm, I can't think straight right now."
	FallbackTimeout   = "Give me a moment, I lost my train of thought."
)

type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeEmpty     Outcome = "empty"
	OutcomeMalformed Outcome = "malformed"
	OutcomeTransport Outcome = "transport"
	OutcomeTimeout   Outcome = "timeout"
)

// Request is one conversational turn to complete.
type Request struct {
	Instructions string
	History      []convo.Turn
	Requester    string
	Character    string
	Message      string
}

// Prompt renders the request as the single text part sent to the service.
func (r Request) Prompt() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(r.Instructions))
	b.WriteString("\n")
	if len(r.History) > 0 {
		b.WriteString("Earlier conversation:\n")
		for _, t := range r.History {
			fmt.Fprintf(&b, "%s: %s\n", speaker(t, r), t.Content)
		}
	}
	fmt.Fprintf(&b, "%s: %q\n%s:", r.Requester, r.Message, r.Character)
	return b.String()
}

func speaker(t convo.Turn, r Request) string {
	if t.Name != "" {
		return t.Name
	}
	if t.Role == convo.RoleCharacter {
		return r.Character
	}
	return r.Requester
}

// Completion is what Complete resolved to. Text is always usable.
type Completion struct {
	Text    string
	Outcome Outcome
	Latency time.Duration
	Err     error
}

func (c Completion) Fallback() bool { return c.Outcome != OutcomeOK }

// Completer bounds a Generator call and maps every failure to a fixed reply.
type Completer struct {
	gen     Generator
	timeout time.Duration
}

func NewCompleter(gen Generator, timeout time.Duration) *Completer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Completer{gen: gen, timeout: timeout}
}

type result struct {
	text string
	err  error
}

// Complete issues exactly one generator call. It returns once the call
// finishes or the timeout elapses, whichever is first.
func (c *Completer) Complete(ctx context.Context, req Request) Completion {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ch := make(chan result, 1)
	go func() {
		text, err := c.gen.Generate(ctx, req.Prompt())
		ch <- result{text: text, err: err}
	}()

	var res result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	out := resolve(res)
	out.Latency = time.Since(start)
	if out.Err != nil {
		slog.Warn("completion fell back", "outcome", out.Outcome, "err", out.Err, "latency", out.Latency)
	}
	return out
}

func resolve(res result) Completion {
	if res.err == nil {
		text := cleanOutput(res.text)
		if text == "" {
			return Completion{Text: FallbackApology, Outcome: OutcomeEmpty, Err: ErrNoCandidates}
		}
		return Completion{Text: text, Outcome: OutcomeOK}
	}

	var apiErr *APIError
	var decErr *DecodeError
	switch {
	case errors.Is(res.err, context.DeadlineExceeded), errors.Is(res.err, context.Canceled):
		return Completion{Text: FallbackTimeout, Outcome: OutcomeTimeout, Err: res.err}
	case errors.As(res.err, &decErr):
		return Completion{Text: FallbackMalformed, Outcome: OutcomeMalformed, Err: res.err}
	case errors.Is(res.err, ErrNoCandidates), errors.As(res.err, &apiErr):
		return Completion{Text: FallbackApology, Outcome: OutcomeEmpty, Err: res.err}
	default:
		return Completion{Text: FallbackTransport, Outcome: OutcomeTransport, Err: res.err}
	}
}

func cleanOutput(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 1 && strings.HasPrefix(s, "\"") && strings.HasSuffix(s, "\"") {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
