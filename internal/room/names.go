package room

import (
	"crypto/rand"
	"math/big"
	"strings"
)

var grains = []string{
	"corn", "rye", "wheat", "barley", "malt", "oat", "spelt", "millet",
}

var casks = []string{
	"oak", "sherry", "port", "rum", "cognac", "madeira", "bourbon", "cider",
	"mizunara", "chestnut", "acacia", "maple", "cherry", "hickory",
}

var notes = []string{
	"caramel", "vanilla", "toffee", "honey", "smoke", "pepper", "clove", "cinnamon",
	"cocoa", "coffee", "leather", "tobacco", "orange", "apricot", "fig", "raisin",
	"nutmeg", "butterscotch", "molasses", "walnut", "pecan", "almond", "mint", "anise",
}

var moods = []string{
	"bold", "smooth", "mellow", "bright", "rich", "spicy", "sweet", "dry",
	"warm", "silky", "rustic", "gentle", "proud", "lively", "quiet", "golden",
}

var places = []string{
	"rickhouse", "stillhouse", "barrel", "warehouse", "copper", "spirit", "proof", "mash",
	"angel", "hollow", "creek", "ridge", "meadow", "hearth", "lantern", "porch",
}

// maxNameTries bounds how long NewName looks for a free name before
// giving up on the taken check.
const maxNameTries = 32

// NewName returns a random, memorable room id such as
// "smooth-rye-caramel-rickhouse". Names for which taken reports true are
// skipped; taken may be nil.
func NewName(taken func(string) bool) string {
	var name string
	for i := 0; i < maxNameTries; i++ {
		name = strings.Join([]string{
			pick(moods), pick(grains), pick(notes), pick(places),
		}, "-")
		if taken == nil || !taken(name) {
			return name
		}
	}
	// Extend the last candidate with a cask so it is almost certainly free.
	return name + "-" + pick(casks)
}

// pick returns a cryptographically random element of words.
func pick(words []string) string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
	if err != nil {
		panic("room: failed to generate random index: " + err.Error())
	}
	return words[n.Int64()]
}
