package convo

import "sync"

// MaxTurns caps every conversation log. Older turns are dropped first.
const MaxTurns = 20

type Role string

const (
	RoleRequester Role = "requester"
	RoleCharacter Role = "character"
)

// Turn is one utterance in a character's conversation log.
type Turn struct {
	Role    Role   `json:"role"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Store keeps a bounded, in-memory conversation log per character id.
// Logs live for the lifetime of the process.
type Store struct {
	mu   sync.RWMutex
	logs map[string][]Turn
}

func NewStore() *Store {
	return &Store{logs: make(map[string][]Turn)}
}

// Append adds a turn to the character's log, creating it on first use and
// evicting from the front once the log exceeds MaxTurns.
func (s *Store) Append(characterID string, turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := append(s.logs[characterID], turn)
	if over := len(log) - MaxTurns; over > 0 {
		log = append([]Turn(nil), log[over:]...)
	}
	s.logs[characterID] = log
}

// Get returns a copy of the character's log, oldest first. Unknown ids yield
// an empty slice.
func (s *Store) Get(characterID string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[characterID]
	out := make([]Turn, len(log))
	copy(out, log)
	return out
}

// Characters reports how many characters have a log.
func (s *Store) Characters() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.logs)
}
