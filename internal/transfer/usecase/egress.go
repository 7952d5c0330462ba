package usecase

import (
	"encoding/csv"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ruhanslop/tabpipe/internal/transfer/entity"
)

// DefaultNameTemplate names the artifact after the upload it was derived from.
const DefaultNameTemplate = "{name}-clean.csv"

// renderFilename expands template placeholders against the state known at
// serve time: {name} is the upload's base name in snake case, {date} the
// current UTC day, {rows} the cleaned row count.
func renderFilename(template string, up entity.Upload, rows int, now time.Time) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultNameTemplate
	}

	base := strings.TrimSuffix(up.OriginalName, filepath.Ext(up.OriginalName))
	base = toSnake(base)
	if base == "" {
		base = "table"
	}

	name := template
	name = strings.ReplaceAll(name, "{name}", base)
	name = strings.ReplaceAll(name, "{date}", now.UTC().Format("2006-01-02"))
	name = strings.ReplaceAll(name, "{rows}", strconv.Itoa(rows))

	return sanitizeFilename(name)
}

// sanitizeFilename strips path separators and control characters so the
// template can never escape the attachment name.
func sanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ':':
			b.WriteRune('_')
		case r < 0x20 || r == 0x7f:
			// drop control characters
		default:
			b.WriteRune(r)
		}
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "download.csv"
	}
	return out
}

// writeCSV serializes the table with a header row. Cells round-trip through
// parseUpload column for column.
func writeCSV(w io.Writer, t entity.Table) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(t.Names()); err != nil {
		return err
	}

	for i := 0; i < t.Rows(); i++ {
		if err := cw.Write(t.Row(i)); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
