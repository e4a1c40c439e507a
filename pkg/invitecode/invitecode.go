// Package invitecode generates human-friendly organization invite codes in
// the form "adjective-noun-xxxxxx".
package invitecode

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"regexp"
	"strings"
)

var adjectives = []string{
	"brave", "calm", "eager", "gentle", "happy", "jolly", "kind", "lively",
	"proud", "witty", "swift", "sharp", "bold", "bright", "creative", "vivid",
	"daring", "radiant", "steady", "agile", "clever", "cosmic", "crisp", "curious",
	"elegant", "epic", "fearless", "golden", "humble", "luminous", "mystic", "noble",
	"playful", "quick", "royal", "serene", "sleek", "stellar", "sunny", "tidy",
}

var nouns = []string{
	"otter", "tiger", "eagle", "dolphin", "panda", "koala", "falcon", "fox",
	"owl", "lynx", "heron", "bison", "beaver", "alpaca", "camel", "crane",
	"finch", "gecko", "hawk", "ibis", "kiwi", "lemur", "llama", "magpie",
	"marlin", "newt", "orca", "osprey", "parrot", "pelican", "puffin", "quail",
	"raven", "robin", "salmon", "seal", "swan", "toucan", "walrus", "wombat",
}

var pattern = regexp.MustCompile(`^[a-z]+-[a-z]+-[0-9a-f]{6}$`)

// Generate returns a new random code. Uniqueness is enforced by the store.
func Generate() string {
	suffix := make([]byte, 3)
	if _, err := rand.Read(suffix); err != nil {
		panic("invitecode: crypto/rand unavailable: " + err.Error())
	}
	return pick(adjectives) + "-" + pick(nouns) + "-" + hex.EncodeToString(suffix)
}

// Normalize trims and lowercases a code typed by a user.
func Normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Valid reports whether code has the generated shape.
func Valid(code string) bool {
	return pattern.MatchString(code)
}

func pick(words []string) string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
	if err != nil {
		panic("invitecode: crypto/rand unavailable: " + err.Error())
	}
	return words[n.Int64()]
}
