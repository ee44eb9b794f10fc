package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/klytics/xla/internal/actions"
	"github.com/klytics/xla/internal/host"
)

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{"": FormatText, "text": FormatText, "JSON": FormatJSON, "yml": FormatYAML}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

type sample struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

func TestEncode(t *testing.T) {
	v := sample{Name: "Ventes", Count: 3}
	text := func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "%s has %d rows\n", v.Name, v.Count)
		return err
	}

	var buf bytes.Buffer
	if err := NewWriter(FormatText, &buf).Encode(v, text); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "Ventes has 3 rows\n" {
		t.Errorf("text = %q", buf.String())
	}

	buf.Reset()
	if err := NewWriter(FormatJSON, &buf).Encode(v, text); err != nil {
		t.Fatal(err)
	}
	var got sample
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil || got != v {
		t.Errorf("json = %q", buf.String())
	}

	buf.Reset()
	if err := NewWriter(FormatYAML, &buf).Encode(v, text); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "name: Ventes") || !strings.Contains(buf.String(), "count: 3") {
		t.Errorf("yaml = %q", buf.String())
	}
}

func TestFprintJSONEnvelope(t *testing.T) {
	var buf bytes.Buffer
	if err := FprintJSON(&buf, "snapshot", map[string]int{"rows": 2}); err != nil {
		t.Fatal(err)
	}
	var res JSONResult
	if err := json.Unmarshal(buf.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Command != "snapshot" || res.Version == "" {
		t.Errorf("envelope = %+v", res)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{fmt.Errorf("action 0: %w", host.ErrInvalidRange), ExitUserError},
		{actions.ErrNoBlock, ExitUserError},
		{fmt.Errorf("open: %w", os.ErrNotExist), ExitUserError},
		{host.ErrHostUnavailable, ExitSystemError},
		{errors.New("boom"), ExitSystemError},
		{&ExitError{Code: ExitUserError, Err: errors.New("2 actions failed")}, ExitUserError},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
