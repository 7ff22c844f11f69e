package recognize

import (
	"math"
	"testing"
)

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"mismatched lengths", []float32{1, 0}, []float32{1, 0, 0}, 2},
		{"empty", nil, nil, 2},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineDistance(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineDistance() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestCosineDistanceScaleInvariant(t *testing.T) {
	a := []float32{0.3, -0.4, 0.5}
	b := []float32{0.6, -0.8, 1.0} // a scaled by 2

	if d := CosineDistance(a, b); math.Abs(d) > 1e-6 {
		t.Errorf("expected zero distance for scaled vector, got %f", d)
	}
}

func TestRecognizerMatch(t *testing.T) {
	prototypes := map[string][]float32{
		"alice": {1, 0, 0},
		"bob":   {0, 1, 0},
	}
	r := NewRecognizer(prototypes, 0.25)

	tests := []struct {
		name       string
		embedding  []float32
		wantName   string
		recognized bool
	}{
		{"exact alice", []float32{1, 0, 0}, "alice", true},
		{"exact bob", []float32{0, 1, 0}, "bob", true},
		{"near alice", []float32{0.99, 0.1, 0}, "alice", true},
		{"far from everyone", []float32{0, 0, 1}, UnknownName, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := r.Match(tt.embedding)
			if m.Name != tt.wantName {
				t.Errorf("Match() name = %s, want %s", m.Name, tt.wantName)
			}
			if m.Recognized != tt.recognized {
				t.Errorf("Match() recognized = %v, want %v", m.Recognized, tt.recognized)
			}
		})
	}
}

func TestRecognizerUnknownKeepsDistance(t *testing.T) {
	r := NewRecognizer(map[string][]float32{"alice": {1, 0}}, 0.25)

	m := r.Match([]float32{0, 1}) // distance 1.0 to alice
	if m.Name != UnknownName {
		t.Errorf("expected %s, got %s", UnknownName, m.Name)
	}
	if math.Abs(m.Distance-1.0) > 1e-6 {
		t.Errorf("expected distance 1.0 preserved, got %f", m.Distance)
	}
}

func TestRecognizerEmptyWhitelist(t *testing.T) {
	r := NewRecognizer(map[string][]float32{}, 0.25)

	m := r.Match([]float32{1, 0, 0})
	if m.Name != UnknownName || m.Recognized {
		t.Errorf("empty whitelist should yield Unknown, got %+v", m)
	}
}

func TestRecognizerThresholdBoundary(t *testing.T) {
	// Distance exactly at the threshold still counts as a match.
	proto := []float32{1, 0}
	r := NewRecognizer(map[string][]float32{"alice": proto}, 1.0)

	m := r.Match([]float32{0, 1})
	if !m.Recognized || m.Name != "alice" {
		t.Errorf("distance equal to threshold should match, got %+v", m)
	}
}

func TestReferenceIndexSearch(t *testing.T) {
	ix := NewReferenceIndex()
	ix.Build(map[string][][]float32{
		"alice": {{1, 0, 0}, {0.9, 0.1, 0}},
		"bob":   {{0, 1, 0}},
	})

	if ix.Count() != 3 {
		t.Fatalf("expected 3 indexed references, got %d", ix.Count())
	}

	hits, err := ix.Search([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Person != "alice" {
		t.Errorf("nearest reference should be alice, got %s", hits[0].Person)
	}
	if hits[0].Distance > hits[1].Distance {
		t.Errorf("hits not sorted by distance: %f > %f", hits[0].Distance, hits[1].Distance)
	}
}

func TestReferenceIndexEmpty(t *testing.T) {
	ix := NewReferenceIndex()
	ix.Build(map[string][][]float32{})

	if _, err := ix.Search([]float32{1, 0}, 1); err == nil {
		t.Error("expected error searching an empty index")
	}
}
