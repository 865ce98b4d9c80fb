package etl

import (
	"encoding/csv"
	"fmt"
	"io"
)

// ResultHeader is the first row of every artifact
var ResultHeader = []string{"Name", "Email"}

// WriteResults serializes entries as CSV preceded by ResultHeader
func WriteResults(w io.Writer, entries []Entry) error {
	writer := csv.NewWriter(w)
	writer.UseCRLF = true

	if err := writer.Write(ResultHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, e := range entries {
		if err := writer.Write([]string{e.Name, e.Email}); err != nil {
			return fmt.Errorf("failed to write entry: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
