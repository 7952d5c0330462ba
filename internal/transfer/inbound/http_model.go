package inbound

import (
	"context"
	"mime"
	"net/http"
	"strings"

	"github.com/ruhanslop/tabpipe/internal/transfer/entity"
	"github.com/ruhanslop/tabpipe/internal/transfer/usecase"
)

type UploadResponse struct {
	UploadID    string              `json:"upload_id"`
	Status      entity.UploadStatus `json:"status"`
	SpooledSize int64               `json:"spooled_size"`
}

func (UploadResponse) StatusCode() int {
	return http.StatusAccepted
}

func (UploadResponse) Message() string {
	return "upload accepted"
}

type StatusResponse struct {
	UploadID     string              `json:"upload_id"`
	OriginalName string              `json:"original_name"`
	Status       entity.UploadStatus `json:"status"`
	Error        string              `json:"error,omitempty"`
	ReceivedAt   int64               `json:"received_at"`
	ParsedAt     int64               `json:"parsed_at,omitempty"`
	RowCount     int                 `json:"row_count"`
	ColCount     int                 `json:"col_count"`
	Options      OptionsResponse     `json:"options"`
}

func toStatusResponse(result usecase.StatusResult) StatusResponse {
	return StatusResponse{
		UploadID:     result.Upload.ID,
		OriginalName: result.Upload.OriginalName,
		Status:       result.Upload.Status,
		Error:        result.Upload.Err,
		ReceivedAt:   result.Upload.ReceivedAt,
		ParsedAt:     result.Upload.ParsedAt,
		RowCount:     result.Upload.RowCount,
		ColCount:     result.Upload.ColCount,
		Options: OptionsResponse{
			RenameSnake:  result.Options.RenameSnake,
			DropEmpty:    result.Options.DropEmpty,
			DropConstant: result.Options.DropConstant,
		},
	}
}

type OptionsRequest struct {
	RenameSnake  bool `json:"rename_snake"`
	DropEmpty    bool `json:"drop_empty"`
	DropConstant bool `json:"drop_constant"`
}

type OptionsResponse struct {
	RenameSnake  bool `json:"rename_snake"`
	DropEmpty    bool `json:"drop_empty"`
	DropConstant bool `json:"drop_constant"`
}

func (OptionsResponse) Message() string {
	return "options updated"
}

type PreviewColumn struct {
	Name string            `json:"name"`
	Type entity.ColumnType `json:"type"`
}

type PreviewResponse struct {
	UploadID  string          `json:"upload_id"`
	Columns   []PreviewColumn `json:"columns"`
	Rows      [][]string      `json:"rows"`
	totalRows int
}

func (r PreviewResponse) Meta() map[string]any {
	return map[string]any{
		"total_rows": r.totalRows,
	}
}

func toPreviewResponse(result usecase.PreviewResult) PreviewResponse {
	columns := make([]PreviewColumn, 0, len(result.Columns))
	for _, c := range result.Columns {
		columns = append(columns, PreviewColumn{Name: c.Name, Type: c.Type})
	}

	return PreviewResponse{
		UploadID:  result.UploadID,
		Columns:   columns,
		Rows:      result.Rows,
		totalRows: result.TotalRows,
	}
}

// downloadResponse adapts an entity.Download to the router's streaming
// response. Headers are buffered behind the first write so a render failure
// still gets the regular JSON error envelope.
type downloadResponse struct {
	spec entity.Download
}

func (d *downloadResponse) Stream(ctx context.Context, w http.ResponseWriter) error {
	return d.spec.WriteContent(&attachmentWriter{w: w, filename: d.spec.Filename()})
}

type attachmentWriter struct {
	w        http.ResponseWriter
	filename string
	started  bool
}

func (a *attachmentWriter) Write(p []byte) (int, error) {
	if !a.started {
		a.started = true

		contentType := "text/csv; charset=utf-8"
		if strings.HasSuffix(a.filename, ".lz4") {
			contentType = "application/octet-stream"
		}

		a.w.Header().Set("Content-Type", contentType)
		a.w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.filename}))
		a.w.WriteHeader(http.StatusOK)
	}

	return a.w.Write(p)
}
