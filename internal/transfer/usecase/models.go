package usecase

import "github.com/ruhanslop/tabpipe/internal/transfer/entity"

type ReceiveInput struct {
	SessionID    string
	OriginalName string
	DeclaredSize int64
	DeclaredMIME string
}

type ReceiveResult struct {
	UploadID    string
	Status      entity.UploadStatus
	SpooledSize int64
}

type StatusResult struct {
	Upload  entity.Upload
	Options CleanOptions
}

type PreviewColumn struct {
	Name string
	Type entity.ColumnType
}

type PreviewResult struct {
	UploadID  string
	Columns   []PreviewColumn
	Rows      [][]string
	TotalRows int
}

// Session is the store's view of one client session: the current upload
// descriptor and the cleaning options in effect.
type Session struct {
	Upload  entity.Upload
	Options CleanOptions
}
