package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nicebartender/npcbridge/convo"
	"github.com/nicebartender/npcbridge/db"
	"github.com/nicebartender/npcbridge/gemini"
	"github.com/nicebartender/npcbridge/ws"
)

const e2eEnvelope = `{"header":{"messagePurpose":"event"},"body":{"type":"title","sender":"Server","message":"{\"pn\":\"Steve\",\"pm\":\"hello\",\"nn\":\"Eliz\",\"ni\":\"npc1\",\"np\":\"humorous\",\"a\":60,\"r\":10}"}}`

type fakeConn struct {
	mu     sync.Mutex
	writes []ws.Message
}

func (c *fakeConn) ID() string { return "conn1234" }

func (c *fakeConn) SendJSON(v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, v.(ws.Message))
}

func (c *fakeConn) commandLines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.writes {
		out = append(out, m.Body.(ws.CommandBody).CommandLine)
	}
	return out
}

type stubCompleter struct {
	mu       sync.Mutex
	text     string
	requests []gemini.Request
}

func (s *stubCompleter) Complete(_ context.Context, req gemini.Request) gemini.Completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return gemini.Completion{Text: s.text, Outcome: gemini.OutcomeOK, Latency: time.Millisecond}
}

func TestHandleEndToEnd(t *testing.T) {
	store := convo.NewStore()
	completer := &stubCompleter{text: "Hey Steve!"}
	b := New(Config{IgnoreSenders: DefaultIgnoreSenders, HistoryTurns: DefaultHistoryTurns}, store, completer)
	defer b.Close()

	conn := &fakeConn{}
	b.Handle(conn, []byte(e2eEnvelope))
	b.Wait()

	lines := conn.commandLines()
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "tellraw @a")
	require.Contains(t, lines[0], "Eliz")
	require.Contains(t, lines[0], "Hey Steve!")
	require.Equal(t, ws.PurposeCommandRequest, conn.writes[0].Header.MessagePurpose)

	log := store.Get("npc1")
	require.Equal(t, []convo.Turn{
		{Role: convo.RoleRequester, Name: "Steve", Content: "hello"},
		{Role: convo.RoleCharacter, Name: "Eliz", Content: "Hey Steve!"},
	}, log)

	require.Len(t, completer.requests, 1)
	req := completer.requests[0]
	require.Contains(t, req.Instructions, "You are Eliz, a humorous villager")
	require.Contains(t, req.Instructions, "You and Steve are good friends.")
	require.Empty(t, req.History)
}

func TestHandleDiscardsWithoutWriting(t *testing.T) {
	store := convo.NewStore()
	b := New(Config{IgnoreSenders: DefaultIgnoreSenders}, store, &stubCompleter{text: "x"})
	defer b.Close()

	conn := &fakeConn{}
	b.Handle(conn, []byte(`not json`))
	b.Handle(conn, []byte(`{"header":{},"body":{"type":"title","sender":"Steve","message":"just chatting"}}`))
	b.Wait()

	require.Empty(t, conn.commandLines())
	require.Equal(t, 0, store.Characters())
}

func TestHistoryIsThreadedIntoLaterRequests(t *testing.T) {
	store := convo.NewStore()
	completer := &stubCompleter{text: "Hey Steve!"}
	b := New(Config{HistoryTurns: 3}, store, completer)
	defer b.Close()

	conn := &fakeConn{}
	for i := 0; i < 3; i++ {
		b.Handle(conn, []byte(e2eEnvelope))
		b.Wait()
	}

	require.Len(t, completer.requests, 3)
	require.Len(t, completer.requests[1].History, 2)
	require.Len(t, completer.requests[2].History, 3, "history is capped to the configured turns")
	require.Equal(t, "Hey Steve!", completer.requests[2].History[2].Content)
	require.Len(t, store.Get("npc1"), 6)
}

func TestSameCharacterRepliesAreSerialized(t *testing.T) {
	store := convo.NewStore()
	gate := make(chan struct{})
	completer := &gatedCompleter{gate: gate}
	b := New(Config{}, store, completer)
	defer b.Close()

	conn := &fakeConn{}
	for i := 0; i < 3; i++ {
		b.Handle(conn, []byte(e2eEnvelope))
	}
	require.Eventually(t, func() bool { return completer.calls() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, completer.calls(), "second reply waits for the first")

	close(gate)
	b.Wait()
	require.Equal(t, 3, completer.calls())
	require.Len(t, store.Get("npc1"), 6)
	for i, turn := range store.Get("npc1") {
		if i%2 == 0 {
			require.Equal(t, convo.RoleRequester, turn.Role)
		} else {
			require.Equal(t, convo.RoleCharacter, turn.Role)
		}
	}
}

type gatedCompleter struct {
	gate chan struct{}
	mu   sync.Mutex
	n    int
}

func (g *gatedCompleter) Complete(ctx context.Context, _ gemini.Request) gemini.Completion {
	g.mu.Lock()
	g.n++
	g.mu.Unlock()
	<-g.gate
	return gemini.Completion{Text: "ok", Outcome: gemini.OutcomeOK}
}

func (g *gatedCompleter) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

func TestHandleWithCompletionServiceAndRecorder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Hey Steve!\n"}]}}]}`))
	}))
	defer srv.Close()

	gen, err := gemini.NewRESTGenerator("k", gemini.WithBaseURL(srv.URL))
	require.NoError(t, err)

	database, err := db.Open(filepath.Join(t.TempDir(), "bridge.db"))
	require.NoError(t, err)
	defer database.Close()

	b := New(Config{IgnoreSenders: DefaultIgnoreSenders}, convo.NewStore(), gemini.NewCompleter(gen, time.Second))
	b.Recorder = database
	defer b.Close()

	conn := &fakeConn{}
	b.Handle(conn, []byte(e2eEnvelope))
	b.Wait()

	lines := conn.commandLines()
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "§eEliz§r: Hey Steve!")

	rows, err := database.RecentExchanges("npc1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "conn1234", rows[0].ConnectionID)
	require.Equal(t, string(gemini.OutcomeOK), rows[0].Outcome)
	require.Equal(t, "Hey Steve!", rows[0].Reply)
}

func TestFallbackStillReplies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	gen, err := gemini.NewRESTGenerator("k", gemini.WithBaseURL(srv.URL))
	require.NoError(t, err)

	store := convo.NewStore()
	b := New(Config{}, store, gemini.NewCompleter(gen, time.Second))
	defer b.Close()

	conn := &fakeConn{}
	b.Handle(conn, []byte(e2eEnvelope))
	b.Wait()

	lines := conn.commandLines()
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], EscapeText(gemini.FallbackApology))
	require.Equal(t, gemini.FallbackApology, store.Get("npc1")[1].Content)
}

func envelopeWithMessage(t *testing.T, message string) []byte {
	t.Helper()
	return titleEnvelope(t, "Server", map[string]any{
		"pn": "Steve", "pm": message, "nn": "Eliz", "ni": "npc1", "np": "humorous",
	})
}

func TestRepliesFollowArrivalOrder(t *testing.T) {
	for run := 0; run < 20; run++ {
		store := convo.NewStore()
		gate := make(chan struct{})
		completer := &gatedCompleter{gate: gate}
		b := New(Config{}, store, completer)

		conn := &fakeConn{}
		for _, m := range []string{"m0", "m1", "m2", "m3"} {
			b.Handle(conn, envelopeWithMessage(t, m))
		}
		close(gate)
		b.Wait()

		var asked []string
		for _, turn := range store.Get("npc1") {
			if turn.Role == convo.RoleRequester {
				asked = append(asked, turn.Content)
			}
		}
		require.Equal(t, []string{"m0", "m1", "m2", "m3"}, asked, "run %d", run)
		require.Len(t, conn.commandLines(), 4)
		b.Close()
	}
}

func TestCharactersProceedIndependently(t *testing.T) {
	gate := make(chan struct{})
	completer := &gatedCompleter{gate: gate}
	b := New(Config{}, convo.NewStore(), completer)
	defer b.Close()

	conn := &fakeConn{}
	b.Handle(conn, titleEnvelope(t, "Server", map[string]any{"pn": "Steve", "pm": "hi", "nn": "Eliz", "ni": "npc1"}))
	b.Handle(conn, titleEnvelope(t, "Server", map[string]any{"pn": "Steve", "pm": "hi", "nn": "Bob", "ni": "npc2"}))

	require.Eventually(t, func() bool { return completer.calls() == 2 }, time.Second, 5*time.Millisecond)
	close(gate)
	b.Wait()
	require.Len(t, conn.commandLines(), 2)
}

func TestHandleAfterCloseIsDropped(t *testing.T) {
	store := convo.NewStore()
	completer := &stubCompleter{text: "Hey Steve!"}
	b := New(Config{}, store, completer)
	b.Close()

	conn := &fakeConn{}
	require.NotPanics(t, func() { b.Handle(conn, []byte(e2eEnvelope)) })
	b.Wait()

	require.Empty(t, conn.commandLines())
	require.Empty(t, completer.requests)
	require.Equal(t, 0, store.Characters())
}

func TestCloseWhileEventsArrive(t *testing.T) {
	b := New(Config{}, convo.NewStore(), &stubCompleter{text: "ok"})
	conn := &fakeConn{}

	var senders sync.WaitGroup
	for i := 0; i < 4; i++ {
		senders.Add(1)
		go func() {
			defer senders.Done()
			for j := 0; j < 50; j++ {
				b.Handle(conn, []byte(e2eEnvelope))
			}
		}()
	}
	b.Close()
	senders.Wait()
	b.Wait()

	n := len(conn.commandLines())
	b.Handle(conn, []byte(e2eEnvelope))
	b.Wait()
	require.Len(t, conn.commandLines(), n)
}
