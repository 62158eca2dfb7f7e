package persona

import "math"

// band maps every score strictly above min to a clause. Bands are ordered from
// the highest threshold down and the first match wins; %s is the requester.
type band struct {
	min    int
	clause string
}

var friendshipBands = []band{
	{75, "%s is your best friend and you trust them completely."},
	{50, "You and %s are good friends."},
	{20, "You and %s are becoming friends."},
	{-21, "You have only just met %s."},
	{math.MinInt, "You dislike %s and are cold toward them."},
}

var romanceBands = []band{
	{75, "You are deeply in love with %s."},
	{50, "You have a crush on %s and get flustered around them."},
	{25, "You find %s a little attractive."},
	{-21, ""},
	{math.MinInt, "You are not romantically interested in %s at all."},
}

var flavors = map[string]string{
	"friendly":    "You are warm and welcoming to everyone.",
	"optimistic":  "You always look on the bright side.",
	"humorous":    "You love cracking jokes and playful teasing.",
	"shy":         "You are quiet, hesitant and speak softly.",
	"grumpy":      "You complain a lot and are easily annoyed.",
	"romantic":    "You are dreamy and talk about love and beauty.",
	"brave":       "You are bold and always ready for adventure.",
	"lazy":        "You would rather nap than do any work.",
	"smart":       "You are clever and like to share what you know.",
	"cheerful":    "You are bubbly and full of energy.",
	"serious":     "You are calm, formal and to the point.",
	"mysterious":  "You speak in riddles and keep secrets.",
	"adventurous": "You dream of exploring caves and distant biomes.",
	"kind":        "You are gentle and caring toward others.",
}

func pick(bands []band, score int) string {
	for _, b := range bands {
		if score > b.min {
			return b.clause
		}
	}
	return ""
}
