package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"unicode/utf8"
)

// Writer streams export tables to a delimited-text sink. Rows pass through
// csv's internal buffer; Flush is called once when the export completes.
type Writer struct {
	csv    *csv.Writer
	header bool
	rows   int
}

// NewWriter wraps w. A zero delimiter means comma.
func NewWriter(w io.Writer, delimiter rune) (*Writer, error) {
	if delimiter == 0 {
		delimiter = ','
	}
	if !ValidDelimiter(delimiter) {
		return nil, fmt.Errorf("invalid delimiter %q", delimiter)
	}
	cw := csv.NewWriter(w)
	cw.Comma = delimiter
	return &Writer{csv: cw}, nil
}

// ValidDelimiter reports whether r can separate fields.
func ValidDelimiter(r rune) bool {
	return r != 0 && r != '"' && r != '\r' && r != '\n' && utf8.ValidRune(r) && r != utf8.RuneError
}

// WriteHeader writes the header row. It may be called once.
func (w *Writer) WriteHeader(cols []Column) error {
	if w.header {
		return fmt.Errorf("%w: header already written", ErrWriteFailure)
	}
	w.header = true
	if err := w.csv.Write(HeaderNames(cols)); err != nil {
		return fmt.Errorf("%w: header: %w", ErrWriteFailure, err)
	}
	return nil
}

// WriteTable streams t's rows and returns how many were written.
func (w *Writer) WriteTable(t *Table) (int, error) {
	if !w.header {
		return 0, fmt.Errorf("%w: table written before header", ErrWriteFailure)
	}
	n := 0
	err := t.Each(func(fields []string) error {
		if err := w.csv.Write(fields); err != nil {
			return fmt.Errorf("%w: row %d: %w", ErrWriteFailure, n, err)
		}
		n++
		return nil
	})
	w.rows += n
	return n, err
}

// Rows returns the number of data rows written so far.
func (w *Writer) Rows() int { return w.rows }

// Flush pushes buffered rows to the sink and reports any deferred write
// error.
func (w *Writer) Flush() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("%w: flush: %w", ErrWriteFailure, err)
	}
	return nil
}
