package prompt

import (
	"strings"
	"testing"
)

// --- MoodGraph integrity ---

func TestAllGenresHaveAdjacent(t *testing.T) {
	for name, g := range MoodGraph {
		if len(g.Adjacent) == 0 {
			t.Errorf("Genre %q has no adjacent genres", name)
		}
	}
}

func TestAdjacencyIsSymmetric(t *testing.T) {
	for name, g := range MoodGraph {
		for _, adj := range g.Adjacent {
			neighbor, ok := MoodGraph[adj]
			if !ok {
				t.Errorf("Genre %q lists non-existent adjacent genre %q", name, adj)
				continue
			}
			found := false
			for _, back := range neighbor.Adjacent {
				if back == name {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("Asymmetric edge: %q -> %q exists, but %q -> %q does not", name, adj, adj, name)
			}
		}
	}
}

func TestGraphIsFullyConnected(t *testing.T) {
	if len(MoodGraph) == 0 {
		t.Fatal("MoodGraph is empty")
	}

	// BFS from an arbitrary start node
	var start string
	for name := range MoodGraph {
		start = name
		break
	}

	visited := map[string]bool{start: true}
	queue := []string{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, adj := range MoodGraph[current].Adjacent {
			if !visited[adj] {
				visited[adj] = true
				queue = append(queue, adj)
			}
		}
	}

	if len(visited) != len(MoodGraph) {
		unreachable := []string{}
		for name := range MoodGraph {
			if !visited[name] {
				unreachable = append(unreachable, name)
			}
		}
		t.Errorf("Graph not fully connected from %q. Unreachable: %v", start, unreachable)
	}
}

func TestGenreNameConsistency(t *testing.T) {
	for name, g := range MoodGraph {
		if g.Name != name {
			t.Errorf("Genre map key %q != Genre.Name %q", name, g.Name)
		}
	}
}

// --- GenreNames / IsValidGenre ---

func TestGenreNames(t *testing.T) {
	names := GenreNames()
	if len(names) != len(MoodGraph) {
		t.Errorf("GenreNames() returned %d names, want %d", len(names), len(MoodGraph))
	}

	seen := make(map[string]bool)
	for _, name := range names {
		if seen[name] {
			t.Errorf("Duplicate genre name: %q", name)
		}
		seen[name] = true
		if !IsValidGenre(name) {
			t.Errorf("GenreNames() returned %q but IsValidGenre says false", name)
		}
	}
}

func TestIsValidGenre(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"ambient", true},
		{"lofi hip hop", true},
		{"lo-fi house", true},
		{"drum and bass", true},
		{"metal", false},
		{"", false},
		{"Ambient", false}, // case sensitive
	}
	for _, tt := range tests {
		if got := IsValidGenre(tt.name); got != tt.want {
			t.Errorf("IsValidGenre(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// --- NextGenre ---

func TestNextGenreFollowsEdges(t *testing.T) {
	for i := 0; i < 50; i++ {
		next := NextGenre("electronic")
		found := false
		for _, adj := range MoodGraph["electronic"].Adjacent {
			if next == adj {
				found = true
			}
		}
		if !found {
			t.Fatalf("NextGenre(electronic) = %q, not an adjacent genre", next)
		}
	}
}

func TestNextGenreUnknownGenreUnchanged(t *testing.T) {
	if got := NextGenre("polka"); got != "polka" {
		t.Errorf("NextGenre(polka) = %q, want polka", got)
	}
}

// --- Captions ---

func TestAllGenresHaveCaptions(t *testing.T) {
	for name := range MoodGraph {
		caption := Caption(name)
		if caption == "" {
			t.Errorf("Genre %q has empty caption", name)
		}
		if len(caption) < 20 {
			t.Errorf("Genre %q caption too short (%d chars): %q", name, len(caption), caption)
		}
	}
}

func TestCaptionUnknownGenre(t *testing.T) {
	caption := Caption("polka")
	if caption == "" {
		t.Fatal("Caption(polka) returned empty for unknown genre")
	}
	if !strings.Contains(caption, "polka") {
		t.Errorf("Unknown genre fallback should include genre name: %q", caption)
	}
}

func TestCaptionsAreInstrumental(t *testing.T) {
	vocalsKeywords := []string{"sing", "vocal", "lyrics", "voice", "rapper", "verse", "chorus"}
	for name := range MoodGraph {
		caption := strings.ToLower(Caption(name))
		for _, kw := range vocalsKeywords {
			for _, word := range strings.FieldsFunc(caption, func(r rune) bool { return r == ' ' || r == ',' }) {
				if word == kw {
					t.Errorf("Genre %q caption contains vocal keyword %q: %q", name, kw, caption)
				}
			}
		}
	}
}

// --- Builder ---

func TestBuildGenreOnly(t *testing.T) {
	b := Builder{DefaultGenre: "ambient"}
	got := b.Build("", "jazz")
	if got != Caption("jazz") {
		t.Errorf("Build with genre = %q, want the jazz caption", got)
	}
}

func TestBuildFallsBackToDefaultGenre(t *testing.T) {
	b := Builder{DefaultGenre: "ambient"}
	got := b.Build("", "")
	if got != Caption("ambient") {
		t.Errorf("Build without genre = %q, want the ambient caption", got)
	}
}

func TestBuildAppendsActivity(t *testing.T) {
	b := Builder{DefaultGenre: "ambient"}
	got := b.Build("refactoring a parser", "lo-fi house")
	if !strings.HasPrefix(got, Caption("lo-fi house")) {
		t.Errorf("Build should start with the genre caption: %q", got)
	}
	if !strings.Contains(got, "refactoring a parser") {
		t.Errorf("Build should mention the activity: %q", got)
	}
}

func TestBuildIsPure(t *testing.T) {
	b := Builder{DefaultGenre: "jazz"}
	a := b.Build("writing tests", "jazz")
	c := b.Build("writing tests", "jazz")
	if a != c {
		t.Errorf("Build not deterministic: %q != %q", a, c)
	}
}

// --- ClipName ---

func TestClipNameKnownGenre(t *testing.T) {
	name := ClipName("jazz", "abc12345-def6-7890")
	if name == "" {
		t.Fatal("ClipName returned empty for known genre")
	}
	if !strings.Contains(name, "jazz") {
		t.Errorf("ClipName should contain genre: got %q", name)
	}
}

func TestClipNameDeterministic(t *testing.T) {
	a := ClipName("ambient", "test-id-001")
	b := ClipName("ambient", "test-id-001")
	if a != b {
		t.Errorf("ClipName not deterministic: %q != %q", a, b)
	}
}

func TestClipNameEmpty(t *testing.T) {
	if ClipName("", "some-id") != "" {
		t.Error("ClipName should return empty for empty genre")
	}
	if ClipName("jazz", "") != "" {
		t.Error("ClipName should return empty for empty clip ID")
	}
}

func TestClipNameUnknownGenre(t *testing.T) {
	name := ClipName("polka", "some-id")
	if name != "polka session" {
		t.Errorf("ClipName for unknown genre should be 'polka session', got %q", name)
	}
}

func TestAllGenresHaveAdjectives(t *testing.T) {
	for name := range MoodGraph {
		adjs := genreAdjectives[name]
		if len(adjs) == 0 {
			t.Errorf("Genre %q has no adjectives for clip naming", name)
		}
	}
}
