package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"seara/internal/sheets"
)

var _ sheets.RowWriter = (*Writer)(nil)

// Writer keeps the last written sheet in memory.
type Writer struct {
	mu     sync.Mutex
	name   string
	header []string
	rows   [][]string
	writes int
}

func New(sheetName string) *Writer {
	if sheetName == "" {
		sheetName = "Transações"
	}
	return &Writer{name: sheetName}
}

func (w *Writer) WriteRows(_ context.Context, header []string, rows [][]string) (string, error) {
	if len(header) == 0 {
		return "", errors.New("missing header")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.header = append([]string(nil), header...)
	w.rows = make([][]string, len(rows))
	for i, r := range rows {
		w.rows[i] = append([]string(nil), r...)
	}
	w.writes++
	return fmt.Sprintf("%s!A1:%s%d", w.name, sheets.ColumnName(len(header)), len(rows)+1), nil
}

// Sheet returns copies of the last written header and rows.
func (w *Writer) Sheet() ([]string, [][]string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rows := make([][]string, len(w.rows))
	for i, r := range w.rows {
		rows[i] = append([]string(nil), r...)
	}
	return append([]string(nil), w.header...), rows
}

// Writes returns how many times the sheet was written.
func (w *Writer) Writes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}
