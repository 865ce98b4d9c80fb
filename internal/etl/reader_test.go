package etl

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/segmentio/parquet-go"
	"github.com/xuri/excelize/v2"
)

func readAll(t *testing.T, r RowReader) []Row {
	t.Helper()
	var rows []Row
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return rows
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		rows = append(rows, row)
	}
}

func TestCSVRowReader(t *testing.T) {
	t.Run("skips short rows and trims fields", func(t *testing.T) {
		input := "Alice , alice@foo.com \nonlyone\nBob,see https://x.test bob@foo.com,extra\n"
		r, err := NewRowReader(strings.NewReader(input), FormatCSV, ReaderOptions{})
		if err != nil {
			t.Fatalf("NewRowReader() error = %v", err)
		}
		defer r.Close()

		rows := readAll(t, r)
		if len(rows) != 2 {
			t.Fatalf("got %d rows, want 2", len(rows))
		}
		if rows[0].Name != "Alice" || rows[0].Text != "alice@foo.com" {
			t.Errorf("rows[0] = %+v", rows[0])
		}
		if rows[1].Line != 3 {
			t.Errorf("rows[1].Line = %d, want 3", rows[1].Line)
		}
		if r.Skipped() != 1 {
			t.Errorf("Skipped() = %d, want 1", r.Skipped())
		}
	})

	t.Run("strips byte order mark", func(t *testing.T) {
		input := "\ufeffAlice,alice@foo.com\n"
		r, _ := NewRowReader(strings.NewReader(input), FormatCSV, ReaderOptions{})
		rows := readAll(t, r)
		if len(rows) != 1 || rows[0].Name != "Alice" {
			t.Errorf("rows = %+v", rows)
		}
	})

	t.Run("skip header", func(t *testing.T) {
		input := "name,text\nAlice,alice@foo.com\n"
		r, _ := NewRowReader(strings.NewReader(input), FormatCSV, ReaderOptions{SkipHeader: true})
		rows := readAll(t, r)
		if len(rows) != 1 || rows[0].Name != "Alice" {
			t.Errorf("rows = %+v", rows)
		}
	})

	t.Run("header kept by default", func(t *testing.T) {
		input := "name,text\nAlice,alice@foo.com\n"
		r, _ := NewRowReader(strings.NewReader(input), FormatCSV, ReaderOptions{})
		if rows := readAll(t, r); len(rows) != 2 {
			t.Errorf("got %d rows, want 2", len(rows))
		}
	})

	t.Run("unterminated quote", func(t *testing.T) {
		input := "Alice,alice@foo.com\nBob,\"bob@foo.com\n"
		r, _ := NewRowReader(strings.NewReader(input), FormatCSV, ReaderOptions{})

		if _, err := r.Next(); err != nil {
			t.Fatalf("first Next() error = %v", err)
		}
		_, err := r.Next()
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("Next() error = %v, want *ParseError", err)
		}
		if pe.Line != 2 {
			t.Errorf("ParseError.Line = %d, want 2", pe.Line)
		}
	})

	t.Run("invalid utf-8", func(t *testing.T) {
		input := "Alice,alice\xff@foo.com\n"
		r, _ := NewRowReader(strings.NewReader(input), FormatCSV, ReaderOptions{})

		_, err := r.Next()
		if !errors.Is(err, ErrInvalidEncoding) {
			t.Fatalf("Next() error = %v, want ErrInvalidEncoding", err)
		}
	})
}

func TestXLSXRowReader(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"Name", "Text"},
		{" Alice ", "alice@foo.com"},
		{"Nobody"},
		{"Bob", "bob@foo.com"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow() error = %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}

	r, err := NewRowReader(bytes.NewReader(buf.Bytes()), FormatXLSX, ReaderOptions{SkipHeader: true})
	if err != nil {
		t.Fatalf("NewRowReader() error = %v", err)
	}
	defer r.Close()

	got := readAll(t, r)
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2: %+v", len(got), got)
	}
	if got[0].Name != "Alice" || got[1].Text != "bob@foo.com" {
		t.Errorf("rows = %+v", got)
	}
	if r.Skipped() != 1 {
		t.Errorf("Skipped() = %d, want 1", r.Skipped())
	}
}

func TestXLSXRowReaderRejectsGarbage(t *testing.T) {
	_, err := NewRowReader(strings.NewReader("not a workbook"), FormatXLSX, ReaderOptions{})
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("NewRowReader() error = %v, want *ParseError", err)
	}
}

func TestParquetRowReader(t *testing.T) {
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[parquetRecord](&buf)
	records := []parquetRecord{
		{Name: "Alice", Text: "alice@foo.com"},
		{Name: "Empty"},
		{Name: "Bob", Text: "bob@foo.com"},
	}
	if _, err := w.Write(records); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	r, err := NewRowReader(bytes.NewReader(buf.Bytes()), FormatParquet, ReaderOptions{})
	if err != nil {
		t.Fatalf("NewRowReader() error = %v", err)
	}
	defer r.Close()

	got := readAll(t, r)
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2: %+v", len(got), got)
	}
	if got[0].Name != "Alice" || got[1].Name != "Bob" {
		t.Errorf("rows = %+v", got)
	}
	if r.Skipped() != 1 {
		t.Errorf("Skipped() = %d, want 1", r.Skipped())
	}
}

func TestJSONRowReader(t *testing.T) {
	input := `{"name":"Alice","text":"alice@foo.com"}
{"name":"NoText"}
{"name":"Bob","text":" bob@foo.com "}
`
	r, err := NewRowReader(strings.NewReader(input), FormatJSON, ReaderOptions{})
	if err != nil {
		t.Fatalf("NewRowReader() error = %v", err)
	}

	got := readAll(t, r)
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	if got[1].Text != "bob@foo.com" || got[1].Line != 3 {
		t.Errorf("rows[1] = %+v", got[1])
	}
	if r.Skipped() != 1 {
		t.Errorf("Skipped() = %d, want 1", r.Skipped())
	}

	t.Run("malformed line", func(t *testing.T) {
		r, _ := NewRowReader(strings.NewReader("{\"name\":"), FormatJSON, ReaderOptions{})
		_, err := r.Next()
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("Next() error = %v, want *ParseError", err)
		}
	})
}

func TestNewRowReaderUnsupported(t *testing.T) {
	_, err := NewRowReader(strings.NewReader(""), FormatUnknown, ReaderOptions{})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestDetectFileFormat(t *testing.T) {
	tests := []struct {
		name string
		want FileFormat
	}{
		{"contacts.csv", FormatCSV},
		{"CONTACTS.CSV", FormatCSV},
		{"list.txt", FormatCSV},
		{"book.xlsx", FormatXLSX},
		{"data.parquet", FormatParquet},
		{"rows.jsonl", FormatJSON},
		{"image.png", FormatUnknown},
		{"noext", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFileFormat(tt.name); got != tt.want {
				t.Errorf("DetectFileFormat(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}
