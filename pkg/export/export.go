// Package export renders tabular reports as CSV or PDF.
package export

import "fmt"

// Dataset is a titled table with optional summary lines printed after it.
type Dataset struct {
	Title   string
	Headers []string
	Rows    [][]string
	Summary []string
}

func (d Dataset) validate() error {
	if len(d.Headers) == 0 {
		return fmt.Errorf("dataset requires at least one header")
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Headers) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(d.Headers))
		}
	}
	return nil
}

// Renderer turns a dataset into a file body.
type Renderer interface {
	Render(Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}
