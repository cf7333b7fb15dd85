package grading

import (
	"reflect"
	"testing"
)

func TestKeyTerms(t *testing.T) {
	tests := []struct {
		name    string
		finding string
		want    []string
	}{
		{"empty", "", nil},
		{"single term", "Pneumothorax", []string{"pneumothorax"}},
		{"short tokens dropped", "mass in the apex", []string{"mass", "apex"}},
		{"punctuation trimmed", "Consolidation, right lower lobe.", []string{"consolidation", "right", "lower", "lobe"}},
		{"all short tokens", "rib at L2", nil},
		{"unicode length", "böle tüm", []string{"böle"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := KeyTerms(tt.finding)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("KeyTerms(%q) = %v, want %v", tt.finding, got, tt.want)
			}
		})
	}
}

func TestMatchFindings(t *testing.T) {
	findings := []string{
		"Right pneumothorax",
		"Mediastinal shift to the left",
		"Rib fracture",
	}

	tests := []struct {
		name string
		text string
		want []bool
	}{
		{"no matches", "normal chest radiograph", []bool{false, false, false}},
		{"single match", "there is a large pneumothorax", []bool{true, false, false}},
		{"case insensitive", "PNEUMOTHORAX with MEDIASTINAL displacement", []bool{true, true, false}},
		{"all matched", "right pneumothorax, mediastinal shift, rib fracture", []bool{true, true, true}},
		{"substring of word counts", "post-fracture changes", []bool{false, false, true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchFindings(tt.text, findings)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MatchFindings(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}

	t.Run("deterministic", func(t *testing.T) {
		text := "pneumothorax and rib fracture"
		first := MatchFindings(text, findings)
		for i := 0; i < 5; i++ {
			if got := MatchFindings(text, findings); !reflect.DeepEqual(got, first) {
				t.Fatalf("MatchFindings not stable: %v vs %v", got, first)
			}
		}
	})

	t.Run("empty findings", func(t *testing.T) {
		got := MatchFindings("anything", nil)
		if len(got) != 0 {
			t.Errorf("MatchFindings with no findings = %v, want empty", got)
		}
	})
}
