package db

import (
	"time"

	"github.com/google/uuid"
)

// Exchange is one answered request as served to the game: what was asked,
// what the character said, and how the completion went.
type Exchange struct {
	ID            string    `json:"id"`
	ConnectionID  string    `json:"connectionId"`
	CharacterID   string    `json:"characterId"`
	CharacterName string    `json:"characterName"`
	RequesterName string    `json:"requesterName"`
	Message       string    `json:"message"`
	Reply         string    `json:"reply"`
	Outcome       string    `json:"outcome"`
	LatencyMs     int64     `json:"latencyMs"`
	CreatedAt     time.Time `json:"createdAt"`
}

// InsertExchange stores e, assigning its id and timestamp.
func (db *DB) InsertExchange(e Exchange) (*Exchange, error) {
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now().UTC()
	_, err := db.Exec(`
		INSERT INTO exchanges (id, connection_id, character_id, character_name, requester_name, message, reply, outcome, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.ConnectionID, e.CharacterID, e.CharacterName, e.RequesterName, e.Message, e.Reply, e.Outcome, e.LatencyMs, e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// RecentExchanges returns up to limit exchanges in chronological order. An
// empty characterID matches every character.
func (db *DB) RecentExchanges(characterID string, limit int) ([]Exchange, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `
		SELECT id, connection_id, character_id, character_name, requester_name, message, reply, outcome, latency_ms, created_at
		FROM exchanges
		ORDER BY created_at DESC, rowid DESC LIMIT ?
	`
	args := []any{limit}
	if characterID != "" {
		query = `
			SELECT id, connection_id, character_id, character_name, requester_name, message, reply, outcome, latency_ms, created_at
			FROM exchanges WHERE character_id = ?
			ORDER BY created_at DESC, rowid DESC LIMIT ?
		`
		args = []any{characterID, limit}
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exchanges []Exchange
	for rows.Next() {
		var e Exchange
		if err := rows.Scan(&e.ID, &e.ConnectionID, &e.CharacterID, &e.CharacterName, &e.RequesterName, &e.Message, &e.Reply, &e.Outcome, &e.LatencyMs, &e.CreatedAt); err != nil {
			continue
		}
		exchanges = append(exchanges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order
	for i, j := 0, len(exchanges)-1; i < j; i, j = i+1, j-1 {
		exchanges[i], exchanges[j] = exchanges[j], exchanges[i]
	}
	return exchanges, nil
}
