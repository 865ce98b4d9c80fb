package etl

import (
	"bytes"
	"encoding/csv"
	"reflect"
	"testing"
)

func TestWriteResults(t *testing.T) {
	entries := []Entry{
		{Name: "Alice", Email: "alice@foo.com"},
		{Name: "Smith, Bob", Email: "bob@foo.com"},
	}

	var buf bytes.Buffer
	if err := WriteResults(&buf, entries); err != nil {
		t.Fatalf("WriteResults() error = %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading back: %v", err)
	}

	want := [][]string{
		{"Name", "Email"},
		{"Alice", "alice@foo.com"},
		{"Smith, Bob", "bob@foo.com"},
	}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("records = %v, want %v", records, want)
	}
}

func TestWriteResultsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResults(&buf, nil); err != nil {
		t.Fatalf("WriteResults() error = %v", err)
	}
	if got := buf.String(); got != "Name,Email\r\n" {
		t.Errorf("output = %q, want header only", got)
	}
}
