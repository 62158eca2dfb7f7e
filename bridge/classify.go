package bridge

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nicebartender/npcbridge/persona"
	"github.com/nicebartender/npcbridge/ws"
)

// Verdict is the classifier's decision for one inbound event.
type Verdict string

const (
	VerdictAccepted         Verdict = "accepted"
	VerdictMalformed        Verdict = "malformed"
	VerdictIgnoredSender    Verdict = "ignored_sender"
	VerdictSelfEcho         Verdict = "self_echo"
	VerdictWrongKind        Verdict = "wrong_kind"
	VerdictUnstructured     Verdict = "unstructured"
	VerdictIncomplete       Verdict = "incomplete"
	VerdictForeignCharacter Verdict = "foreign_character"
)

// highlightCode opens the coloured name in every command the bridge emits.
// Text carrying it came from the bridge itself.
const highlightCode = "§e"

const titleType = "title"

var acceptedEvents = map[string]bool{
	"PlayerMessage": true,
	"TitleChanged":  true,
}

// DefaultIgnoreSenders are system origins that never carry player requests.
var DefaultIgnoreSenders = []string{"External", "Script Engine"}

// EventBody covers every accepted body shape.
type EventBody struct {
	Type      string `json:"type"`
	EventName string `json:"eventName"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Title     string `json:"title"`
	Text      string `json:"text"`
}

func (b EventBody) content() string {
	for _, s := range []string{b.Message, b.Title, b.Text} {
		if s != "" {
			return s
		}
	}
	return ""
}

// Score is an affinity value. It accepts JSON numbers or numeric strings,
// truncates fractions and saturates at ±maxScore.
type Score int

const maxScore = 1 << 30

func (s *Score) UnmarshalJSON(data []byte) error {
	str := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if str == "" || str == "null" {
		*s = 0
		return nil
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return fmt.Errorf("score %q: %w", str, err)
	}
	switch {
	case math.IsNaN(f):
		return fmt.Errorf("score %q: not a number", str)
	case f > maxScore:
		f = maxScore
	case f < -maxScore:
		f = -maxScore
	}
	*s = Score(int(f))
	return nil
}

// Payload is the structured request embedded in a chat or title message.
type Payload struct {
	RequesterName string `json:"pn"`
	Message       string `json:"pm"`
	CharacterName string `json:"nn"`
	CharacterID   string `json:"ni"`
	Personality   string `json:"np"`
	Gender        string `json:"ns"`
	Friendship    Score  `json:"a"`
	Romance       Score  `json:"r"`
	Type          string `json:"t"`
}

// Key is the conversation key; the character name stands in when no id was sent.
func (p Payload) Key() string {
	if id := strings.TrimSpace(p.CharacterID); id != "" {
		return id
	}
	return strings.TrimSpace(p.CharacterName)
}

func (p Payload) Traits() persona.Traits {
	return persona.Traits{
		Name:        p.CharacterName,
		Personality: p.Personality,
		Gender:      p.Gender,
		Requester:   p.RequesterName,
		Friendship:  int(p.Friendship),
		Romance:     int(p.Romance),
		Interaction: p.Type,
	}
}

// Classifier decides which inbound events are conversational requests.
type Classifier struct {
	ignore     map[string]bool
	characters map[string]bool
}

// NewClassifier builds a classifier. Characters, when non-empty, restricts the
// bridge to those names; they are also treated as the bridge's own senders.
func NewClassifier(ignoreSenders, characters []string) *Classifier {
	c := &Classifier{
		ignore:     make(map[string]bool),
		characters: make(map[string]bool),
	}
	for _, s := range ignoreSenders {
		if s = strings.TrimSpace(s); s != "" {
			c.ignore[s] = true
		}
	}
	for _, s := range characters {
		if s = strings.TrimSpace(s); s != "" {
			c.characters[s] = true
		}
	}
	return c
}

// Classify decodes data and returns the embedded payload when the event is a
// conversational request. It has no side effects.
func (c *Classifier) Classify(data []byte) (Payload, Verdict) {
	var env ws.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Payload{}, VerdictMalformed
	}
	var body EventBody
	if len(env.Body) == 0 || json.Unmarshal(env.Body, &body) != nil {
		return Payload{}, VerdictMalformed
	}

	sender := strings.TrimSpace(body.Sender)
	if c.ignore[sender] || c.characters[sender] {
		return Payload{}, VerdictIgnoredSender
	}
	text := body.content()
	if strings.Contains(text, highlightCode) {
		return Payload{}, VerdictSelfEcho
	}

	if body.Type != titleType && !acceptedEvents[env.Header.EventName] && !acceptedEvents[body.EventName] {
		return Payload{}, VerdictWrongKind
	}

	var p Payload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return Payload{}, VerdictUnstructured
	}
	p.RequesterName = strings.TrimSpace(p.RequesterName)
	p.CharacterName = strings.TrimSpace(p.CharacterName)
	if p.RequesterName == "" || p.CharacterName == "" {
		return Payload{}, VerdictIncomplete
	}

	if sender == p.CharacterName {
		return Payload{}, VerdictSelfEcho
	}
	if len(c.characters) > 0 && !c.characters[p.CharacterName] {
		return Payload{}, VerdictForeignCharacter
	}
	return p, VerdictAccepted
}
