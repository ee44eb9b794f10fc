package actions

import "testing"

func TestSummarize(t *testing.T) {
	block := &Block{Actions: []Action{
		&Write{Range: "A1", Values: [][]Value{{String("Total")}}},
		&Formula{Range: "B2:B4", Formula: "=A2*0.2"},
		&Format{Range: "A1:D1"},
		&Write{Range: "Feuille1!C1", Values: [][]Value{{Number(3)}}},
	}}

	got := Summarize(block)
	want := []string{
		"write to `A1`",
		"formula `=A2*0.2` in `B2:B4`",
		"formatting of `A1:D1`",
		"write to `Feuille1!C1`",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSummarizeEmpty(t *testing.T) {
	if got := Summarize(nil); len(got) != 0 {
		t.Errorf("expected no lines for nil block, got %v", got)
	}
	if got := Summarize(&Block{}); len(got) != 0 {
		t.Errorf("expected no lines for empty block, got %v", got)
	}
}
