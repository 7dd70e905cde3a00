package respondent

import "testing"

func TestSimilarityBounds(t *testing.T) {
	names := []string{"", "a", "John Smith", "Jon Smyth", "Zzyzx Q", "María José", "O'Brien"}
	for _, a := range names {
		if got := Similarity(a, a); got != 100 {
			t.Fatalf("Similarity(%q, %q) = %d, want 100", a, a, got)
		}
		for _, b := range names {
			got := Similarity(a, b)
			if got < 0 || got > 100 {
				t.Fatalf("Similarity(%q, %q) = %d out of range", a, b, got)
			}
			if got != Similarity(b, a) {
				t.Fatalf("Similarity not symmetric for %q, %q", a, b)
			}
		}
	}
}

func TestSimilarityIgnoresCase(t *testing.T) {
	if got := Similarity("JOHN SMITH", "john smith"); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
	if got := Similarity("Jon Smyth", "Jon Smith"); got != 89 {
		t.Fatalf("expected 89, got %d", got)
	}
}

func TestSimilarityScores(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{a: "jon smyth", b: "john smith", want: 84},
		{a: "Jon Smyth", b: "Jon Smith", want: 89},
		{a: "amy", b: "mya", want: 67},
		{a: "sam jones", b: "sam johnson", want: 80},
		{a: "kim ng", b: "kimberly ng", want: 71},
		{a: "abc", b: "xyz", want: 0},
		{a: "", b: "abc", want: 0},
		{a: "", b: "", want: 100},
	}
	for _, tc := range tests {
		t.Run(tc.a+"/"+tc.b, func(t *testing.T) {
			if got := Similarity(tc.a, tc.b); got != tc.want {
				t.Fatalf("Similarity(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestSimilarityFlagsTransposedShortNames(t *testing.T) {
	got := rankMatches("Amy", []candidate{{id: 9, name: "Mya"}})
	if len(got) != 1 || got[0].Score != 67 {
		t.Fatalf("expected Mya flagged with score 67, got %+v", got)
	}
}

func TestRankMatches(t *testing.T) {
	pool := []candidate{
		{id: 1, name: "John Smith"},
		{id: 2, name: "Jon Smith"},
		{id: 3, name: "Zzyzx Q"},
		{id: 4, name: "Jon Smyth"},
	}
	got := rankMatches("Jon Smyth", pool)
	if len(got) != 3 {
		t.Fatalf("expected 3 matches, got %+v", got)
	}
	if got[0].ID != 1 || got[0].Score != 84 || got[1].ID != 2 || got[1].Score != 89 {
		t.Fatalf("unexpected order or scores: %+v", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Score > got[i].Score {
			t.Fatalf("matches not ascending: %+v", got)
		}
	}
	for _, m := range got {
		if m.Score < MatchThreshold {
			t.Fatalf("match below threshold: %+v", m)
		}
	}
	if got[2].ID != 4 || got[2].Score != 100 {
		t.Fatalf("expected identical name last, got %+v", got[2])
	}
}
