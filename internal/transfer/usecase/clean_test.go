package usecase

import (
	"reflect"
	"testing"

	"github.com/ruhanslop/tabpipe/internal/transfer/entity"
)

func sampleTable() entity.Table {
	return entity.Table{Columns: []entity.Column{
		{Name: "First Name", Type: entity.ColumnTypeString, Cells: []string{"alice", "bob"}},
		{Name: "notes", Type: entity.ColumnTypeString, Cells: []string{"", ""}},
		{Name: "country", Type: entity.ColumnTypeString, Cells: []string{"NL", "NL"}},
		{Name: "Age", Type: entity.ColumnTypeInt, Cells: []string{"30", "41"}},
	}}
}

func TestApplyCleanDropEmpty(t *testing.T) {
	t.Parallel()

	out := applyClean(sampleTable(), CleanOptions{DropEmpty: true})

	want := []string{"First Name", "country", "Age"}
	if got := out.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected columns: %v", got)
	}
	if got := out.Columns[0].Cells; !reflect.DeepEqual(got, []string{"alice", "bob"}) {
		t.Fatalf("surviving column changed: %v", got)
	}
}

func TestApplyCleanDropConstant(t *testing.T) {
	t.Parallel()

	out := applyClean(sampleTable(), CleanOptions{DropConstant: true})

	// notes (all missing) and country (single distinct value) both count
	// as constant.
	want := []string{"First Name", "Age"}
	if got := out.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected columns: %v", got)
	}
}

func TestApplyCleanRenameSnake(t *testing.T) {
	t.Parallel()

	out := applyClean(sampleTable(), CleanOptions{RenameSnake: true})

	want := []string{"first_name", "notes", "country", "age"}
	if got := out.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected names: %v", got)
	}
}

func TestApplyCleanIdempotent(t *testing.T) {
	t.Parallel()

	opts := CleanOptions{RenameSnake: true, DropEmpty: true, DropConstant: true}

	once := applyClean(sampleTable(), opts)
	twice := applyClean(once, opts)

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("second application changed the table:\nonce:  %#v\ntwice: %#v", once, twice)
	}
}

func TestApplyCleanDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := sampleTable()
	_ = applyClean(in, CleanOptions{RenameSnake: true, DropEmpty: true})

	if !reflect.DeepEqual(in, sampleTable()) {
		t.Fatalf("input table mutated: %#v", in)
	}
}

func TestRenameSnakeResolvesCollisions(t *testing.T) {
	t.Parallel()

	in := entity.Table{Columns: []entity.Column{
		{Name: "a b", Cells: []string{"1"}},
		{Name: "a_b", Cells: []string{"2"}},
	}}

	out := renameSnake(in.Clone())
	want := []string{"a_b", "a_b_2"}
	if got := out.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected names: %v", got)
	}

	again := renameSnake(out.Clone())
	if got := again.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("rename not idempotent: %v", got)
	}
}

func TestRenameSnakeCollidesWithExistingSuffix(t *testing.T) {
	t.Parallel()

	// "X" snake-cases to "x", which then collides with both "x" and the
	// pre-existing "x_2" column.
	in := entity.Table{Columns: []entity.Column{
		{Name: "x", Cells: []string{"1"}},
		{Name: "x_2", Cells: []string{"2"}},
		{Name: "X", Cells: []string{"3"}},
	}}

	out := renameSnake(in.Clone())
	want := []string{"x", "x_2", "x_2_2"}
	if got := out.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected names: %v", got)
	}
}

func TestToSnake(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"First Name", "first_name"},
		{"camelCase", "camel_case"},
		{"already_snake", "already_snake"},
		{"  spaced  out  ", "spaced_out"},
		{"Weird---Chars!!", "weird_chars"},
		{"ABC", "abc"},
	}

	for _, tc := range tests {
		if got := toSnake(tc.in); got != tc.want {
			t.Fatalf("toSnake(%q) = %q, want %q", tc.in, got, tc.want)
		}
		if got := toSnake(toSnake(tc.in)); got != tc.want {
			t.Fatalf("toSnake not idempotent for %q: %q", tc.in, got)
		}
	}
}
