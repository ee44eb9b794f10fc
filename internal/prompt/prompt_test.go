package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/klytics/xla/internal/actions"
	"github.com/klytics/xla/internal/snapshot"
)

func TestBuildNilSnapshot(t *testing.T) {
	if got := Build(nil, Options{}); got != Persona {
		t.Error("nil snapshot should yield the persona alone")
	}
}

func TestPersonaDescribesProtocol(t *testing.T) {
	for _, s := range []string{actions.StartMarker, actions.EndMarker, `"type": "write"`, `"borders": true`} {
		if !strings.Contains(Persona, s) {
			t.Errorf("persona missing %q", s)
		}
	}
	if strings.Index(Persona, "APRÈS ton texte explicatif") > strings.Index(Persona, actions.StartMarker) {
		t.Error("placement instruction should precede the example block")
	}
}

func TestPersonaExampleParses(t *testing.T) {
	block := actions.Parse(Persona)
	if block == nil {
		t.Fatal("example block in persona should parse")
	}
	if len(block.Actions) != 3 {
		t.Errorf("expected 3 example actions, got %d", len(block.Actions))
	}
}

func TestBuildWithSnapshot(t *testing.T) {
	snap := &snapshot.Snapshot{
		ActiveSheet: snapshot.Sheet{
			Name:    "Grand livre",
			Headers: []string{"Compte", "Débit", "Crédit"},
			Rows:    [][]string{{"401", "0", "1200"}, {"512", "1200", "0"}},
		},
		Selection:      &snapshot.Selection{Range: "'Grand livre'!B2:C3", StartRow: 1, StartCol: 1},
		WorkbookSheets: []string{"Grand livre", "Balance"},
	}

	got := Build(snap, Options{})
	if !strings.HasPrefix(got, Persona+"\n\n--- DONNÉES EXCEL ---\n") {
		t.Error("data section should follow the persona")
	}
	for _, want := range []string{
		"Classeur ouvert avec les feuilles : Grand livre, Balance\n\n",
		"Feuille active : \"Grand livre\"\n",
		"Colonnes : Compte | Débit | Crédit\n",
		"\nDonnées (2 lignes) :\n401 | 0 | 1200\n512 | 1200 | 0\n",
		"\nL'utilisateur a sélectionné la plage : 'Grand livre'!B2:C3\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if !strings.HasSuffix(got, "\n--- FIN DES DONNÉES EXCEL ---") {
		t.Error("prompt should end with the closing marker")
	}
}

func TestBuildWithoutHeadersOrSelection(t *testing.T) {
	snap := &snapshot.Snapshot{
		ActiveSheet:    snapshot.Sheet{Name: "Vide", Headers: []string{}, Rows: [][]string{}},
		WorkbookSheets: []string{"Vide"},
	}
	got := Build(snap, Options{})
	if strings.Contains(got, "Colonnes :") {
		t.Error("no header line expected")
	}
	if strings.Contains(got, "sélectionné la plage") {
		t.Error("no selection line expected")
	}
	if !strings.Contains(got, "Données (0 lignes) :") {
		t.Error("row count missing")
	}
}

func TestBuildBoundsRows(t *testing.T) {
	rows := make([][]string, 250)
	for i := range rows {
		rows[i] = []string{fmt.Sprintf("ligne-%d", i)}
	}
	snap := &snapshot.Snapshot{ActiveSheet: snapshot.Sheet{Name: "S", Rows: rows}}

	got := Build(snap, Options{})
	if !strings.Contains(got, "Données (250 lignes) :") {
		t.Error("total row count should be reported")
	}
	if !strings.Contains(got, "ligne-199\n") || strings.Contains(got, "ligne-200\n") {
		t.Error("rows should be capped at the default limit")
	}
	if !strings.Contains(got, "(50 lignes supplémentaires non affichées)") {
		t.Error("omission notice missing")
	}

	all := Build(snap, Options{MaxRows: -1})
	if !strings.Contains(all, "ligne-249\n") || strings.Contains(all, "non affichées") {
		t.Error("negative MaxRows should render every row")
	}
}
