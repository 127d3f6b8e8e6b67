// Package export serializes transactions to the CSV file users download.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"seara/internal/core"
	"seara/internal/sheets"
)

const (
	FileName    = "transacoes_seara_finance.csv"
	ContentType = "text/csv;charset=utf-8"

	// BOM lets spreadsheet tools detect UTF-8.
	BOM = "\ufeff"
)

// Header is the fixed first row of every export.
var Header = []string{"Descrição", "Valor", "Categoria", "Tipo", "Status", "Data", "Data do Cadastro"}

// Row renders one transaction. Dates are shown in loc; unparseable dates
// render as empty fields.
func Row(tx core.Transaction, loc *time.Location) []string {
	return []string{
		tx.Description,
		tx.Amount.String(),
		tx.Category,
		tx.Type.Label(),
		tx.Status.Label(),
		formatDate(tx.Date, core.DisplayDateLayout, loc),
		formatDate(tx.CreatedAt, core.DisplayDateTimeLayout, loc),
	}
}

// Rows renders records in input order, without the header.
func Rows(records []core.Transaction, loc *time.Location) [][]string {
	out := make([][]string, 0, len(records))
	for _, tx := range records {
		out = append(out, Row(tx, loc))
	}
	return out
}

// ToCSV returns the BOM-prefixed CSV text of records. Rows are separated by
// "\n" with no trailing newline.
func ToCSV(records []core.Transaction, loc *time.Location) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(BOM)

	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}
	if err := w.WriteAll(Rows(records, loc)); err != nil {
		return "", fmt.Errorf("write csv rows: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// WriteCSV writes the export of records to w.
func WriteCSV(w io.Writer, records []core.Transaction, loc *time.Location) error {
	text, err := ToCSV(records, loc)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, text); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

// WriteFile writes the export to dir/FileName and returns the file path.
func WriteFile(dir string, records []core.Transaction, loc *time.Location) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, FileName)
	text, err := ToCSV(records, loc)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	return path, nil
}

// WriteSheet writes the same header and rows as ToCSV to a spreadsheet.
func WriteSheet(ctx context.Context, w sheets.RowWriter, records []core.Transaction, loc *time.Location) (string, error) {
	ref, err := w.WriteRows(ctx, Header, Rows(records, loc))
	if err != nil {
		return "", fmt.Errorf("write export sheet: %w", err)
	}
	return ref, nil
}

func formatDate(s, layout string, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	t, err := core.ParseDateIn(s, loc)
	if err != nil {
		return ""
	}
	return t.Format(layout)
}
