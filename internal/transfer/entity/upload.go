package entity

type Upload struct {
	ID           string
	SessionID    string
	OriginalName string
	DeclaredSize int64
	DeclaredMIME string
	StoragePath  string
	Status       UploadStatus
	Err          string
	ReceivedAt   int64
	ParsedAt     int64

	// Shape stats for status reporting without holding the table.
	RowCount int
	ColCount int
}
