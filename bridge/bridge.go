// Package bridge turns classified game events into character replies.
package bridge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nicebartender/npcbridge/convo"
	"github.com/nicebartender/npcbridge/db"
	"github.com/nicebartender/npcbridge/gemini"
	"github.com/nicebartender/npcbridge/metrics"
	"github.com/nicebartender/npcbridge/persona"
	"github.com/nicebartender/npcbridge/ws"
)

const DefaultHistoryTurns = 10

// Conn is the connection an event arrived on; replies go back through it.
type Conn interface {
	ID() string
	SendJSON(v interface{})
}

type Completer interface {
	Complete(ctx context.Context, req gemini.Request) gemini.Completion
}

type ExchangeRecorder interface {
	InsertExchange(e db.Exchange) (*db.Exchange, error)
}

type Config struct {
	IgnoreSenders []string
	Characters    []string
	// HistoryTurns is how many prior turns are rendered into each prompt.
	HistoryTurns int
}

// Bridge owns the conversation state for the process. Replies for the same
// character are produced one at a time, in arrival order.
type Bridge struct {
	classifier   *Classifier
	store        *convo.Store
	completer    Completer
	historyTurns int

	Recorder ExchangeRecorder
	Metrics  *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	// lanes holds the pending requests per character key. A key is present
	// while its worker is draining it.
	lanes map[string][]request
}

type request struct {
	conn    Conn
	payload Payload
}

func New(cfg Config, store *convo.Store, completer Completer) *Bridge {
	if cfg.HistoryTurns < 0 {
		cfg.HistoryTurns = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		classifier:   NewClassifier(cfg.IgnoreSenders, cfg.Characters),
		store:        store,
		completer:    completer,
		historyTurns: cfg.HistoryTurns,
		ctx:          ctx,
		cancel:       cancel,
		lanes:        make(map[string][]request),
	}
}

// Handle classifies one inbound message and, when it is a conversational
// request, answers it on conn in the background.
func (b *Bridge) Handle(conn Conn, data []byte) {
	p, verdict := b.classifier.Classify(data)
	b.Metrics.Event(b.ctx, string(verdict))
	if verdict != VerdictAccepted {
		slog.Debug("event discarded", "client", conn.ID(), "verdict", verdict)
		return
	}

	key := p.Key()
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		slog.Debug("event dropped after close", "client", conn.ID(), "character", key)
		return
	}
	b.wg.Add(1)
	pending, running := b.lanes[key]
	b.lanes[key] = append(pending, request{conn: conn, payload: p})
	b.mu.Unlock()

	if !running {
		go b.drain(key)
	}
}

// drain answers the requests queued for key in arrival order and exits once
// the lane is empty.
func (b *Bridge) drain(key string) {
	for {
		b.mu.Lock()
		pending := b.lanes[key]
		if len(pending) == 0 {
			delete(b.lanes, key)
			b.mu.Unlock()
			return
		}
		next := pending[0]
		b.lanes[key] = pending[1:]
		b.mu.Unlock()

		b.respond(next.conn, next.payload)
		b.wg.Done()
	}
}

func (b *Bridge) respond(conn Conn, p Payload) {
	key := p.Key()
	slog.Info("conversation", "client", conn.ID(), "requester", p.RequesterName, "character", p.CharacterName, "message", p.Message)

	history := b.store.Get(key)
	if len(history) > b.historyTurns {
		history = history[len(history)-b.historyTurns:]
	}

	completion := b.completer.Complete(b.ctx, gemini.Request{
		Instructions: persona.Build(p.Traits()),
		History:      history,
		Requester:    p.RequesterName,
		Character:    p.CharacterName,
		Message:      p.Message,
	})
	b.Metrics.Completion(b.ctx, string(completion.Outcome), completion.Latency)

	b.store.Append(key, convo.Turn{Role: convo.RoleRequester, Name: p.RequesterName, Content: p.Message})
	b.store.Append(key, convo.Turn{Role: convo.RoleCharacter, Name: p.CharacterName, Content: completion.Text})

	conn.SendJSON(ws.NewCommandRequest(FormatCommand(p.CharacterName, completion.Text)))
	slog.Info("character replied", "client", conn.ID(), "character", p.CharacterName, "outcome", completion.Outcome, "latency", completion.Latency)

	if b.Recorder != nil {
		_, err := b.Recorder.InsertExchange(db.Exchange{
			ConnectionID:  conn.ID(),
			CharacterID:   key,
			CharacterName: p.CharacterName,
			RequesterName: p.RequesterName,
			Message:       p.Message,
			Reply:         completion.Text,
			Outcome:       string(completion.Outcome),
			LatencyMs:     completion.Latency.Milliseconds(),
		})
		if err != nil {
			slog.Error("record exchange failed", "err", err)
		}
	}
}

// Wait blocks until every in-flight reply has been written.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

// Close stops accepting events, cancels in-flight completions, which then
// resolve to their fallback, and waits for the queued replies to finish.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
}
