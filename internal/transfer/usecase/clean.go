package usecase

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ruhanslop/tabpipe/internal/transfer/entity"
)

// CleanOptions are the independently toggleable cleaning transforms applied
// to a parsed table. Each transform is pure and idempotent, so the set is
// order-independent.
type CleanOptions struct {
	RenameSnake  bool
	DropEmpty    bool
	DropConstant bool
}

// applyClean returns a cleaned copy of t. The input table is never mutated.
func applyClean(t entity.Table, opts CleanOptions) entity.Table {
	out := t.Clone()

	if opts.DropEmpty {
		out = dropColumns(out, func(c entity.Column) bool { return c.Empty() })
	}

	if opts.DropConstant {
		out = dropColumns(out, func(c entity.Column) bool { return c.Constant() })
	}

	if opts.RenameSnake {
		out = renameSnake(out)
	}

	return out
}

func dropColumns(t entity.Table, drop func(entity.Column) bool) entity.Table {
	kept := make([]entity.Column, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !drop(c) {
			kept = append(kept, c)
		}
	}
	t.Columns = kept
	return t
}

// renameSnake lower-snake-cases every column name, then re-deduplicates in
// case two distinct names collapsed to the same snake form.
func renameSnake(t entity.Table) entity.Table {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, toSnake(c.Name))
	}

	seen := make(map[string]int, len(names))
	for i, name := range names {
		// Same retry rule as the header dedupe: grow from the colliding
		// candidate so the loop always reaches a fresh name.
		base := name
		for {
			seen[base]++
			if seen[base] == 1 {
				break
			}
			base = fmt.Sprintf("%s_%d", base, seen[base])
		}
		t.Columns[i].Name = base
	}

	return t
}

// toSnake converts any name to lower snake case: non-alphanumeric runs
// become single underscores and camelCase boundaries split.
func toSnake(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)

	prevUnderscore := true // suppress a leading underscore
	prevLower := false

	for _, r := range name {
		switch {
		case unicode.IsUpper(r):
			if prevLower && !prevUnderscore {
				b.WriteRune('_')
			}
			b.WriteRune(unicode.ToLower(r))
			prevUnderscore = false
			prevLower = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			prevUnderscore = false
			prevLower = unicode.IsLower(r)
		default:
			if !prevUnderscore {
				b.WriteRune('_')
			}
			prevUnderscore = true
			prevLower = false
		}
	}

	return strings.TrimRight(b.String(), "_")
}
