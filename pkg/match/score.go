package match

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/elonfeng/campusmatch/pkg/listing"
)

// Point values of the additive score.
const (
	CategoryPoints = 40
	LocationPoints = 30
	TokenPoints    = 10
	MaxScore       = 100

	// Tokens must be longer than this many characters to count.
	minTokenLen = 3
)

// ErrMissingField is returned by Validate when a field used for scoring is empty.
var ErrMissingField = errors.New("missing required field")

// Validate checks that l carries every field Score relies on.
func Validate(l listing.Listing) error {
	var missing []string
	if strings.TrimSpace(l.Category) == "" {
		missing = append(missing, "category")
	}
	if strings.TrimSpace(l.Location) == "" {
		missing = append(missing, "location")
	}
	if strings.TrimSpace(l.Description) == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	return nil
}

// Score computes the 0-100 similarity of a lost listing to a found listing.
//
// The score is additive: matching category, matching location, and ten
// points per lost description token (longer than three characters) that also
// appears in the found description. Token overlap runs lost -> found only,
// so Score(a, b) and Score(b, a) may differ.
//
// Empty fields contribute nothing; two empty categories do not match.
func Score(lost, found listing.Listing) int {
	score := 0

	if equalFold(lost.Category, found.Category) {
		score += CategoryPoints
	}
	if equalFold(lost.Location, found.Location) {
		score += LocationPoints
	}

	score += sharedTokens(lost.Description, found.Description) * TokenPoints

	return min(score, MaxScore)
}

func equalFold(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.ToLower(a) == strings.ToLower(b)
}

// sharedTokens counts lost tokens that appear in the found token list.
// Repeated lost tokens are counted every time.
func sharedTokens(lostDesc, foundDesc string) int {
	lostTokens := strings.Fields(strings.ToLower(lostDesc))
	if len(lostTokens) == 0 {
		return 0
	}

	foundSet := make(map[string]bool)
	for _, t := range strings.Fields(strings.ToLower(foundDesc)) {
		foundSet[t] = true
	}

	n := 0
	for _, t := range lostTokens {
		if utf8.RuneCountInString(t) > minTokenLen && foundSet[t] {
			n++
		}
	}
	return n
}
