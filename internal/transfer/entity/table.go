package entity

// Column is an ordered sequence of cells sharing one inferred type.
//
// A cell holding the empty string is a missing value; CSV has no other way
// to express absence, so the two are deliberately conflated.
type Column struct {
	Name  string
	Type  ColumnType
	Cells []string
}

// Missing reports whether the cell at row i holds no value.
func (c Column) Missing(i int) bool {
	return c.Cells[i] == ""
}

// Empty reports whether every cell in the column is missing.
func (c Column) Empty() bool {
	for i := range c.Cells {
		if !c.Missing(i) {
			return false
		}
	}
	return true
}

// Constant reports whether the column carries at most one distinct
// non-missing value across all rows.
func (c Column) Constant() bool {
	seen := ""
	found := false
	for i, cell := range c.Cells {
		if c.Missing(i) {
			continue
		}
		if !found {
			seen = cell
			found = true
			continue
		}
		if cell != seen {
			return false
		}
	}
	return true
}

// Table is an ordered collection of equally sized, uniquely named columns.
type Table struct {
	Columns []Column
}

// Rows returns the number of rows in the table.
func (t Table) Rows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0].Cells)
}

// Names returns column names in order.
func (t Table) Names() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

// Row materializes row i across all columns.
func (t Table) Row(i int) []string {
	row := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		row = append(row, c.Cells[i])
	}
	return row
}

// Clone returns a deep copy so transforms never alias the source cells.
func (t Table) Clone() Table {
	cols := make([]Column, 0, len(t.Columns))
	for _, c := range t.Columns {
		cells := make([]string, len(c.Cells))
		copy(cells, c.Cells)
		cols = append(cols, Column{Name: c.Name, Type: c.Type, Cells: cells})
	}
	return Table{Columns: cols}
}
