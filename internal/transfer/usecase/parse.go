package usecase

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ruhanslop/tabpipe/internal/transfer/entity"
)

// parseUpload reads a delimited file into a table. The extension allow-list
// is enforced here, server side, regardless of any client-side filtering.
func parseUpload(name string, r io.Reader, allowed []string) (entity.Table, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))

	delim, ok := delimiterFor(ext, allowed)
	if !ok {
		return entity.Table{}, fmt.Errorf("file extension %q is not allowed", ext)
	}

	reader := csv.NewReader(r)
	reader.Comma = delim
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return entity.Table{}, errors.New("file has no header row")
	}
	if err != nil {
		return entity.Table{}, fmt.Errorf("read header: %w", err)
	}

	names := dedupeNames(header)
	columns := make([]entity.Column, len(names))
	for i, n := range names {
		columns[i] = entity.Column{Name: n}
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return entity.Table{}, fmt.Errorf("read row: %w", err)
		}

		for i := range columns {
			columns[i].Cells = append(columns[i].Cells, strings.TrimSpace(record[i]))
		}
	}

	for i := range columns {
		columns[i].Type = inferColumnType(columns[i].Cells)
	}

	return entity.Table{Columns: columns}, nil
}

// delimiterFor maps an allowed extension to its field delimiter.
func delimiterFor(ext string, allowed []string) (rune, bool) {
	found := false
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(a), ext) {
			found = true
			break
		}
	}
	if !found {
		return 0, false
	}

	switch ext {
	case "tsv":
		return '\t', true
	default:
		return ',', true
	}
}

// dedupeNames makes header names unique and non-empty while preserving
// order: blanks become column_N, repeats get a _2, _3, ... suffix.
func dedupeNames(header []string) []string {
	names := make([]string, 0, len(header))
	seen := make(map[string]int, len(header))

	for i, raw := range header {
		name := strings.TrimSpace(raw)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}

		// Retry from the current candidate, not the original name, so a
		// generated suffix that collides with a real column keeps moving.
		base := name
		for {
			seen[base]++
			if seen[base] == 1 {
				break
			}
			base = fmt.Sprintf("%s_%d", base, seen[base])
		}

		names = append(names, base)
	}

	return names
}

// inferColumnType picks the narrowest scalar type that fits every
// non-missing cell. Integers promote to float, anything else is a string.
func inferColumnType(cells []string) entity.ColumnType {
	allInt := true
	allFloat := true
	allBool := true
	any := false

	for _, cell := range cells {
		if cell == "" {
			continue
		}
		any = true

		if allInt {
			if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat {
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				allFloat = false
			}
		}
		if allBool {
			switch strings.ToLower(cell) {
			case "true", "false":
			default:
				allBool = false
			}
		}
	}

	switch {
	case !any:
		return entity.ColumnTypeString
	case allInt:
		return entity.ColumnTypeInt
	case allFloat:
		return entity.ColumnTypeFloat
	case allBool:
		return entity.ColumnTypeBool
	default:
		return entity.ColumnTypeString
	}
}
