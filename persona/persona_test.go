package persona

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildDefaults(t *testing.T) {
	got := Build(Traits{Name: "Eliz"})

	require.True(t, strings.HasPrefix(got, "You are Eliz, a friendly villager in Minecraft talking to Player."), got)
	require.Contains(t, got, "You have only just met Player.")
	require.Contains(t, got, flavors["friendly"])
	require.NotContains(t, got, "love")
	require.True(t, strings.HasSuffix(got, closing), got)
}

func TestBuildEmptyTraits(t *testing.T) {
	got := Build(Traits{})
	require.Contains(t, got, "You are Villager, a friendly villager")
}

func TestBuildGenderAndArticle(t *testing.T) {
	got := Build(Traits{Name: "Bob", Personality: "optimistic", Gender: "Male", Requester: "Alex"})
	require.Contains(t, got, "You are Bob, an optimistic male villager in Minecraft talking to Alex.")
}

func TestFriendshipBandsEscalate(t *testing.T) {
	all := []string{
		"You dislike Steve and are cold toward them.",
		"You have only just met Steve.",
		"You and Steve are becoming friends.",
		"You and Steve are good friends.",
		"Steve is your best friend and you trust them completely.",
	}

	cases := []struct {
		score int
		want  string
	}{
		{-50, all[0]},
		{-20, all[1]},
		{0, all[1]},
		{20, all[1]},
		{21, all[2]},
		{50, all[2]},
		{51, all[3]},
		{75, all[3]},
		{76, all[4]},
		{150, all[4]},
	}

	for _, tc := range cases {
		got := Build(Traits{Name: "Eliz", Requester: "Steve", Friendship: tc.score})
		matched := 0
		for _, clause := range all {
			if strings.Contains(got, clause) {
				matched++
			}
		}
		require.Equal(t, 1, matched, "score=%d: %s", tc.score, got)
		require.Contains(t, got, tc.want, "score=%d", tc.score)
	}
}

func TestFriendshipIndependentOfRomance(t *testing.T) {
	for _, romance := range []int{-100, 0, 30, 60, 90} {
		got := Build(Traits{Name: "Eliz", Requester: "Steve", Friendship: 60, Romance: romance})
		require.Contains(t, got, "You and Steve are good friends.", "romance=%d", romance)
	}
}

func TestRomanceBands(t *testing.T) {
	require.NotContains(t, Build(Traits{Requester: "Steve", Romance: 10}), "attractive")
	require.Contains(t, Build(Traits{Requester: "Steve", Romance: 26}), "You find Steve a little attractive.")
	require.Contains(t, Build(Traits{Requester: "Steve", Romance: 51}), "You have a crush on Steve")
	require.Contains(t, Build(Traits{Requester: "Steve", Romance: 80}), "You are deeply in love with Steve.")
	require.Contains(t, Build(Traits{Requester: "Steve", Romance: -30}), "not romantically interested in Steve")
}

func TestUnknownPersonalityPassesThrough(t *testing.T) {
	got := Build(Traits{Name: "Eliz", Personality: "Sarcastic"})
	require.Contains(t, got, "You are Eliz, a Sarcastic villager")
	for _, f := range flavors {
		require.NotContains(t, got, f)
	}
}

func TestPersonalityLookupIgnoresCase(t *testing.T) {
	got := Build(Traits{Name: "Eliz", Personality: "HUMOROUS"})
	require.Contains(t, got, flavors["humorous"])
	require.Contains(t, got, "You are Eliz, a HUMOROUS villager")

	require.Contains(t, Build(Traits{Name: "Eliz", Personality: "Optimistic"}), "an Optimistic villager")
}

func TestInteractionClause(t *testing.T) {
	dialogue := Build(Traits{Name: "Eliz", Requester: "Steve", Interaction: InteractionDialogue})
	direct := Build(Traits{Name: "Eliz", Requester: "Steve", Interaction: "i"})

	require.NotContains(t, dialogue, "interacted with you")
	require.Contains(t, direct, "Steve just interacted with you directly")
	require.True(t, strings.HasSuffix(direct, closing))
}

func TestBuildIsDeterministic(t *testing.T) {
	tr := Traits{Name: "Eliz", Personality: "shy", Gender: "female", Requester: "Steve", Friendship: 40, Romance: 60, Interaction: "I"}
	require.Equal(t, Build(tr), Build(tr))
}
