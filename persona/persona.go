// Package persona renders the instruction text that tells the completion
// model which character to play and how it feels about the requester.
package persona

import (
	"fmt"
	"strings"
)

const (
	DefaultName        = "Villager"
	DefaultRequester   = "Player"
	DefaultPersonality = "friendly"

	// InteractionDialogue is a spoken message; InteractionDirect is a physical
	// or social interaction such as a gift or a hug.
	InteractionDialogue = "D"
	InteractionDirect   = "I"

	closing = "Respond naturally in under 40 words and always stay in character."
)

// Traits is everything the instruction text depends on. Zero values fall back
// to the defaults above.
type Traits struct {
	Name        string
	Personality string
	Gender      string
	Requester   string
	Friendship  int
	Romance     int
	Interaction string
}

// Build renders the instructions for t. The output depends only on t.
func Build(t Traits) string {
	name := orDefault(t.Name, DefaultName)
	requester := orDefault(t.Requester, DefaultRequester)
	personality := orDefault(t.Personality, DefaultPersonality)

	descriptor := personality
	if g := strings.ToLower(strings.TrimSpace(t.Gender)); g != "" {
		descriptor += " " + g
	}

	parts := []string{
		fmt.Sprintf("You are %s, %s %s villager in Minecraft talking to %s.", name, article(descriptor), descriptor, requester),
	}
	if c := pick(friendshipBands, t.Friendship); c != "" {
		parts = append(parts, fmt.Sprintf(c, requester))
	}
	if c := pick(romanceBands, t.Romance); c != "" {
		parts = append(parts, fmt.Sprintf(c, requester))
	}
	if f, ok := flavors[strings.ToLower(personality)]; ok {
		parts = append(parts, f)
	}
	if strings.EqualFold(strings.TrimSpace(t.Interaction), InteractionDirect) {
		parts = append(parts, fmt.Sprintf("%s just interacted with you directly instead of talking, so react to that interaction.", requester))
	}
	parts = append(parts, closing)

	return strings.Join(parts, " ")
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

func article(word string) string {
	if word != "" && strings.ContainsRune("aeiouAEIOU", rune(word[0])) {
		return "an"
	}
	return "a"
}
