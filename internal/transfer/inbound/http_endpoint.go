package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/ruhanslop/tabpipe/internal/pkg/pkgerror"
	"github.com/ruhanslop/tabpipe/internal/transfer/usecase"
)

// HeaderSessionID carries the client session identity for all transfer
// endpoints; session_id query param is accepted as a fallback.
const HeaderSessionID = "X-Session-ID"

// HeaderUploadSize lets clients declare the upload size up front so
// over-sized transfers fail before the body is spooled.
const HeaderUploadSize = "X-Upload-Size"

type HTTPEndpoint struct {
	uc uc
}

func (h *HTTPEndpoint) Upload(ctx context.Context, r *http.Request) (any, error) {
	sessionID, err := sessionFromRequest(r)
	if err != nil {
		return nil, err
	}

	reader, meta, cleanup, err := extractUpload(r)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	meta.SessionID = sessionID
	if declared := strings.TrimSpace(r.Header.Get(HeaderUploadSize)); declared != "" {
		size, err := strconv.ParseInt(declared, 10, 64)
		if err != nil || size < 0 {
			return nil, pkgerror.NewInvalidInput(errors.New("invalid " + HeaderUploadSize + " header"))
		}
		meta.DeclaredSize = size
	}

	result, err := h.uc.Receive(ctx, meta, reader)
	if err != nil {
		return nil, err
	}

	return UploadResponse{
		UploadID:    result.UploadID,
		Status:      result.Status,
		SpooledSize: result.SpooledSize,
	}, nil
}

func (h *HTTPEndpoint) Status(ctx context.Context, r *http.Request) (any, error) {
	sessionID, err := sessionFromRequest(r)
	if err != nil {
		return nil, err
	}

	result, err := h.uc.Status(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return toStatusResponse(result), nil
}

func (h *HTTPEndpoint) Options(ctx context.Context, r *http.Request) (any, error) {
	sessionID, err := sessionFromRequest(r)
	if err != nil {
		return nil, err
	}

	var req OptionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, pkgerror.NewInvalidFormat(err)
	}

	opts := usecase.CleanOptions{
		RenameSnake:  req.RenameSnake,
		DropEmpty:    req.DropEmpty,
		DropConstant: req.DropConstant,
	}
	if err := h.uc.SetOptions(ctx, sessionID, opts); err != nil {
		return nil, err
	}

	return OptionsResponse{
		RenameSnake:  opts.RenameSnake,
		DropEmpty:    opts.DropEmpty,
		DropConstant: opts.DropConstant,
	}, nil
}

func (h *HTTPEndpoint) Preview(ctx context.Context, r *http.Request) (any, error) {
	sessionID, err := sessionFromRequest(r)
	if err != nil {
		return nil, err
	}

	rows := 0
	if raw := r.URL.Query().Get("rows"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 1 {
			return nil, pkgerror.NewInvalidInput(errors.New("invalid rows"))
		}
		rows = value
	}

	result, err := h.uc.Preview(ctx, sessionID, rows)
	if err != nil {
		return nil, err
	}

	return toPreviewResponse(result), nil
}

func (h *HTTPEndpoint) Download(ctx context.Context, r *http.Request) (any, error) {
	sessionID, err := sessionFromRequest(r)
	if err != nil {
		return nil, err
	}

	query := r.URL.Query()
	compress := false
	switch strings.ToLower(query.Get("compress")) {
	case "":
	case "lz4":
		compress = true
	default:
		return nil, pkgerror.NewInvalidInput(errors.New("unsupported compress value"))
	}

	dl, err := h.uc.PrepareDownload(ctx, sessionID, query.Get("template"), compress)
	if err != nil {
		return nil, err
	}

	return &downloadResponse{spec: dl}, nil
}

func sessionFromRequest(r *http.Request) (string, error) {
	sessionID := strings.TrimSpace(r.Header.Get(HeaderSessionID))
	if sessionID == "" {
		sessionID = strings.TrimSpace(r.URL.Query().Get("session_id"))
	}
	if sessionID == "" {
		return "", pkgerror.NewInvalidInput(errors.New("session id is required"))
	}
	return sessionID, nil
}

// extractUpload returns the upload byte stream plus the client-declared
// metadata, from either a multipart "file" field or a raw body with a
// filename query param.
func extractUpload(r *http.Request) (io.ReadCloser, usecase.ReceiveInput, func(), error) {
	contentType := r.Header.Get("Content-Type")
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil && strings.EqualFold(mediaType, "multipart/form-data") {
			return extractMultipartFile(r)
		}
	}

	if r.Body == nil {
		return nil, usecase.ReceiveInput{}, func() {}, pkgerror.NewInvalidInput(errors.New("empty request body"))
	}

	meta := usecase.ReceiveInput{
		OriginalName: strings.TrimSpace(r.URL.Query().Get("filename")),
		DeclaredMIME: contentType,
	}
	if r.ContentLength > 0 {
		meta.DeclaredSize = r.ContentLength
	}

	return r.Body, meta, func() {}, nil
}

func extractMultipartFile(r *http.Request) (io.ReadCloser, usecase.ReceiveInput, func(), error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, usecase.ReceiveInput{}, func() {}, pkgerror.NewInvalidFormat(err)
	}

	for {
		part, err := reader.NextPart()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, usecase.ReceiveInput{}, func() {}, pkgerror.NewInvalidInput(errors.New("file part is required"))
			}
			return nil, usecase.ReceiveInput{}, func() {}, pkgerror.NewInvalidFormat(err)
		}

		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}

		meta := usecase.ReceiveInput{
			OriginalName: part.FileName(),
			DeclaredMIME: part.Header.Get("Content-Type"),
		}
		if raw := part.Header.Get("Content-Length"); raw != "" {
			if size, err := strconv.ParseInt(raw, 10, 64); err == nil {
				meta.DeclaredSize = size
			}
		}

		return part, meta, func() { _ = part.Close() }, nil
	}
}
