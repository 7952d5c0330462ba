package entity

type UploadStatus string

const (
	UploadStatusReceived UploadStatus = "RECEIVED"
	UploadStatusParsing  UploadStatus = "PARSING"
	UploadStatusReady    UploadStatus = "READY"
	UploadStatusFailed   UploadStatus = "FAILED"
)

type ColumnType string

const (
	ColumnTypeInt    ColumnType = "INT"
	ColumnTypeFloat  ColumnType = "FLOAT"
	ColumnTypeBool   ColumnType = "BOOL"
	ColumnTypeString ColumnType = "STRING"
)
