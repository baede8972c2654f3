package usecase

import (
	"fmt"
	"math/rand"
)

// Word lists for suggested display names
var nouns = []string{
	"Otter", "Falcon", "Badger", "Heron", "Lynx", "Gecko", "Panda", "Koala",
	"Crayon", "Pencil", "Easel", "Canvas", "Marker", "Chalk", "Pastel", "Brush",
	"Comet", "Pebble", "Maple", "Cactus", "Walrus", "Magpie", "Newt", "Yak",
}

var adjectives = []string{
	"Swift", "Sleepy", "Curious", "Brave", "Quiet", "Jolly", "Clever", "Fuzzy",
	"Dizzy", "Lucky", "Sunny", "Shy", "Bold", "Witty", "Nimble", "Mellow",
}

// SuggestName returns a random "Adjective Noun" name that fits the length
// limits, for users who did not pick one
func SuggestName() string {
	return suggestName(rand.Intn)
}

func suggestName(pick func(n int) int) string {
	return fmt.Sprintf("%s %s", adjectives[pick(len(adjectives))], nouns[pick(len(nouns))])
}
