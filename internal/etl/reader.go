package etl

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/segmentio/parquet-go"
	"github.com/xuri/excelize/v2"
)

// RowReader yields input rows one at a time. Next returns io.EOF after the
// last row and a *ParseError when the input is malformed.
type RowReader interface {
	Next() (Row, error)
	// Skipped returns how many rows were dropped for having fewer than two
	// fields.
	Skipped() int64
	Close() error
}

// ReaderOptions controls row reading
type ReaderOptions struct {
	SkipHeader bool
}

// NewRowReader creates a row reader for the given format
func NewRowReader(r io.Reader, format FileFormat, opts ReaderOptions) (RowReader, error) {
	switch format {
	case FormatCSV:
		return newCSVRowReader(r, opts), nil
	case FormatXLSX:
		return newXLSXRowReader(r, opts)
	case FormatParquet:
		return newParquetRowReader(r, opts)
	case FormatJSON:
		return newJSONRowReader(r, opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// toRow trims the first two fields. Rows with fewer than two fields are
// not rows at all.
func toRow(line int, fields []string) (Row, bool) {
	if len(fields) < 2 {
		return Row{}, false
	}
	return Row{
		Line: line,
		Name: strings.TrimSpace(fields[0]),
		Text: strings.TrimSpace(fields[1]),
	}, true
}

// csvRowReader reads comma separated rows with strict quoting
type csvRowReader struct {
	reader     *csv.Reader
	skipHeader bool
	first      bool
	skipped    int64
}

func newCSVRowReader(r io.Reader, opts ReaderOptions) *csvRowReader {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // Allow variable fields
	reader.ReuseRecord = true

	return &csvRowReader{
		reader:     reader,
		skipHeader: opts.SkipHeader,
		first:      true,
	}
}

func (c *csvRowReader) Next() (Row, error) {
	for {
		record, err := c.reader.Read()
		if err == io.EOF {
			return Row{}, io.EOF
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return Row{}, &ParseError{Line: pe.StartLine, Err: pe.Err}
			}
			return Row{}, &ParseError{Err: err}
		}

		line, _ := c.reader.FieldPos(0)

		if c.first {
			c.first = false
			if len(record) > 0 {
				record[0] = strings.TrimPrefix(record[0], "\ufeff")
			}
			if c.skipHeader {
				continue
			}
		}

		for _, field := range record {
			if !utf8.ValidString(field) {
				return Row{}, &ParseError{Line: line, Err: ErrInvalidEncoding}
			}
		}

		row, ok := toRow(line, record)
		if !ok {
			c.skipped++
			continue
		}
		return row, nil
	}
}

func (c *csvRowReader) Skipped() int64 { return c.skipped }
func (c *csvRowReader) Close() error   { return nil }

// xlsxRowReader reads the first sheet of a workbook
type xlsxRowReader struct {
	file       *excelize.File
	rows       *excelize.Rows
	skipHeader bool
	line       int
	skipped    int64
}

func newXLSXRowReader(r io.Reader, opts ReaderOptions) (*xlsxRowReader, error) {
	file, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &ParseError{Err: fmt.Errorf("failed to open workbook: %w", err)}
	}

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		file.Close()
		return nil, &ParseError{Err: errors.New("workbook has no sheets")}
	}

	rows, err := file.Rows(sheets[0])
	if err != nil {
		file.Close()
		return nil, &ParseError{Err: fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)}
	}

	return &xlsxRowReader{file: file, rows: rows, skipHeader: opts.SkipHeader}, nil
}

func (x *xlsxRowReader) Next() (Row, error) {
	for x.rows.Next() {
		x.line++
		cols, err := x.rows.Columns()
		if err != nil {
			return Row{}, &ParseError{Line: x.line, Err: err}
		}
		if x.line == 1 && x.skipHeader {
			continue
		}

		row, ok := toRow(x.line, cols)
		if !ok {
			x.skipped++
			continue
		}
		return row, nil
	}

	if err := x.rows.Error(); err != nil {
		return Row{}, &ParseError{Line: x.line, Err: err}
	}
	return Row{}, io.EOF
}

func (x *xlsxRowReader) Skipped() int64 { return x.skipped }

func (x *xlsxRowReader) Close() error {
	x.rows.Close()
	return x.file.Close()
}

// parquetRecord maps the two input columns of a parquet file
type parquetRecord struct {
	Name string `parquet:"name,optional"`
	Text string `parquet:"text,optional"`
}

// parquetRowReader reads name/text columns from a parquet file
type parquetRowReader struct {
	reader     *parquet.Reader
	skipHeader bool
	line       int
	skipped    int64
}

func newParquetRowReader(r io.Reader, opts ReaderOptions) (*parquetRowReader, error) {
	ra, size, err := readerAt(r)
	if err != nil {
		return nil, &ParseError{Err: fmt.Errorf("failed to buffer parquet input: %w", err)}
	}

	file, err := parquet.OpenFile(ra, size)
	if err != nil {
		return nil, &ParseError{Err: fmt.Errorf("failed to open parquet file: %w", err)}
	}

	return &parquetRowReader{
		reader:     parquet.NewReader(file),
		skipHeader: opts.SkipHeader,
	}, nil
}

func (p *parquetRowReader) Next() (Row, error) {
	for {
		var record parquetRecord
		err := p.reader.Read(&record)
		if err == io.EOF {
			return Row{}, io.EOF
		}
		if err != nil {
			return Row{}, &ParseError{Line: p.line + 1, Err: err}
		}
		p.line++

		if p.line == 1 && p.skipHeader {
			continue
		}
		if record.Text == "" {
			p.skipped++
			continue
		}

		row, _ := toRow(p.line, []string{record.Name, record.Text})
		return row, nil
	}
}

func (p *parquetRowReader) Skipped() int64 { return p.skipped }
func (p *parquetRowReader) Close() error   { return p.reader.Close() }

// jsonRecord is one line of a JSON lines input
type jsonRecord struct {
	Name *string `json:"name"`
	Text *string `json:"text"`
}

// jsonRowReader reads one JSON object per line
type jsonRowReader struct {
	decoder    *json.Decoder
	skipHeader bool
	line       int
	skipped    int64
}

func newJSONRowReader(r io.Reader, opts ReaderOptions) *jsonRowReader {
	return &jsonRowReader{decoder: json.NewDecoder(r), skipHeader: opts.SkipHeader}
}

func (j *jsonRowReader) Next() (Row, error) {
	for {
		var record jsonRecord
		err := j.decoder.Decode(&record)
		if err == io.EOF {
			return Row{}, io.EOF
		}
		if err != nil {
			return Row{}, &ParseError{Line: j.line + 1, Err: err}
		}
		j.line++

		if j.line == 1 && j.skipHeader {
			continue
		}
		if record.Name == nil || record.Text == nil {
			j.skipped++
			continue
		}

		row, _ := toRow(j.line, []string{*record.Name, *record.Text})
		return row, nil
	}
}

func (j *jsonRowReader) Skipped() int64 { return j.skipped }
func (j *jsonRowReader) Close() error   { return nil }

// readerAt exposes r as an io.ReaderAt with a known size, buffering it in
// memory when it cannot seek
func readerAt(r io.Reader) (io.ReaderAt, int64, error) {
	if rs, ok := r.(interface {
		io.ReaderAt
		io.Seeker
	}); ok {
		size, err := rs.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, err
		}
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return nil, 0, err
		}
		return io.NewSectionReader(rs, 0, size), size, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
}
