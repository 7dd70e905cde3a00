package respondent

import (
	"math"
	"sort"
	"strings"
)

// MatchThreshold is the lowest similarity score reported as a possible match.
const MatchThreshold = 50

// Similarity scores two names from 0 to 100 as 2*LCS/(len(a)+len(b)) over their
// lowercased runes, i.e. an edit distance counting only insertions and deletions.
// Identical names score 100.
func Similarity(a, b string) int {
	ra, rb := []rune(strings.ToLower(a)), []rune(strings.ToLower(b))
	total := len(ra) + len(rb)
	if total == 0 {
		return 100
	}
	common := lcsLength(ra, rb)
	return int(math.RoundToEven(100 * float64(2*common) / float64(total)))
}

// lcsLength is the length of the longest common subsequence of a and b.
func lcsLength(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// Match is an existing respondent that resembles a new name.
type Match struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	District       string   `json:"district,omitempty"`
	Score          int      `json:"score"`
	LinkedStudents []string `json:"linked_students"`
}

type candidate struct {
	id       int64
	name     string
	district string
}

// rankMatches keeps candidates at or above MatchThreshold, weakest first.
func rankMatches(name string, existing []candidate) []Match {
	out := make([]Match, 0)
	for _, c := range existing {
		score := Similarity(name, c.name)
		if score < MatchThreshold {
			continue
		}
		out = append(out, Match{ID: c.id, Name: c.name, District: c.district, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out
}
