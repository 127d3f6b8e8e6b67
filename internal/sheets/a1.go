package sheets

import "fmt"

// ColumnName converts a 1-based column index to its A1 letters.
func ColumnName(n int) string {
	name := ""
	for n > 0 {
		n--
		name = string(rune('A'+n%26)) + name
		n /= 26
	}
	return name
}

// FullRange returns the A1 range covering every row of the first cols columns.
func FullRange(sheet string, cols int) string {
	return fmt.Sprintf("%s!A:%s", sheet, ColumnName(cols))
}
