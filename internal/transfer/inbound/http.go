package inbound

import (
	"context"
	"io"

	"github.com/ruhanslop/tabpipe/internal/pkg/pkgrouter"
	"github.com/ruhanslop/tabpipe/internal/transfer/entity"
	"github.com/ruhanslop/tabpipe/internal/transfer/usecase"
)

type uc interface {
	Receive(ctx context.Context, in usecase.ReceiveInput, r io.Reader) (usecase.ReceiveResult, error)
	Status(ctx context.Context, sessionID string) (usecase.StatusResult, error)
	SetOptions(ctx context.Context, sessionID string, opts usecase.CleanOptions) error
	Preview(ctx context.Context, sessionID string, rows int) (usecase.PreviewResult, error)
	PrepareDownload(ctx context.Context, sessionID, template string, compress bool) (entity.Download, error)
}

func RegisterHTTPEndpoint(r *pkgrouter.Router, uc uc) {
	end := &HTTPEndpoint{uc: uc}

	r.POST("/uploads", end.Upload)
	r.GET("/uploads/status", end.Status)

	r.PUT("/options", end.Options)

	r.GET("/preview", end.Preview)   // ?rows=
	r.GET("/download", end.Download) // ?template=&compress=
}
