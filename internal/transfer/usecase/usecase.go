package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/ruhanslop/tabpipe/internal/pkg/pkgerror"
	"github.com/ruhanslop/tabpipe/internal/pkg/pkguid"
	"github.com/ruhanslop/tabpipe/internal/transfer/entity"
	"github.com/ruhanslop/tabpipe/internal/transfer/spool"
)

// ErrSuperseded is returned by the store when a write targets an upload
// that has been replaced by a newer one in the same session.
var ErrSuperseded = errors.New("upload superseded")

type Store interface {
	ReplaceUpload(ctx context.Context, sessionID string, up entity.Upload) (entity.Upload, bool, error)
	UpdateUpload(ctx context.Context, sessionID, uploadID string, fn func(*entity.Upload)) error
	SaveTable(ctx context.Context, sessionID, uploadID string, table entity.Table) error
	Snapshot(ctx context.Context, sessionID string) (Session, error)
	AwaitSettled(ctx context.Context, sessionID string) (Session, error)
	SetOptions(ctx context.Context, sessionID string, opts CleanOptions) error
	CleanedTable(ctx context.Context, sessionID string, clean func(entity.Table, CleanOptions) entity.Table) (entity.Table, error)
}

type Spooler interface {
	Stage(r io.Reader, limit int64) (string, int64, error)
	Open(path string) (io.ReadCloser, error)
	Publish(write func(w io.Writer) error) (string, error)
	Remove(path string) error
}

type CleanupPublisher interface {
	Publish(ctx context.Context, event entity.SpoolCleanupEvent) error
}

type Runner interface {
	Go(ctx context.Context, f func(ctx context.Context) error)
}

type Clock interface {
	Now() time.Time
}

type Metrics interface {
	UploadReceived(bytes int64)
	UploadRejected()
	ParseFinished(outcome string, d time.Duration)
	DownloadServed(encoding string)
	WaitTimedOut()
}

// Config carries the operator tunables of the pipeline.
type Config struct {
	MaxUploadBytes int64
	AllowedExts    []string
	WaitTimeout    time.Duration
	PreviewMaxRows int
}

const (
	defaultMaxUploadBytes = 5 << 20
	defaultWaitTimeout    = 10 * time.Second
	defaultPreviewMaxRows = 100
)

func (c Config) withDefaults() Config {
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = defaultMaxUploadBytes
	}

	// An unset config key arrives as a single blank entry, not an empty
	// slice, so blanks are stripped before the default applies.
	exts := make([]string, 0, len(c.AllowedExts))
	for _, e := range c.AllowedExts {
		if e = strings.TrimSpace(e); e != "" {
			exts = append(exts, e)
		}
	}
	c.AllowedExts = exts
	if len(c.AllowedExts) == 0 {
		c.AllowedExts = []string{"csv", "tsv", "txt"}
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = defaultWaitTimeout
	}
	if c.PreviewMaxRows <= 0 {
		c.PreviewMaxRows = defaultPreviewMaxRows
	}
	return c
}

type Dependency struct {
	Store   Store
	Spool   Spooler
	Events  CleanupPublisher
	Runner  Runner
	Metrics Metrics
	Clock   Clock
	ID      pkguid.StringID
	RootCtx context.Context
	Config  Config
}

type Usecase struct {
	store   Store
	spool   Spooler
	events  CleanupPublisher
	runner  Runner
	metrics Metrics
	clock   Clock
	id      pkguid.StringID
	rootCtx context.Context
	cfg     Config
}

func New(dep Dependency) *Usecase {
	root := dep.RootCtx
	if root == nil {
		root = context.Background()
	}

	clock := dep.Clock
	if clock == nil {
		clock = realClock{}
	}

	return &Usecase{
		store:   dep.Store,
		spool:   dep.Spool,
		events:  dep.Events,
		runner:  dep.Runner,
		metrics: dep.Metrics,
		clock:   clock,
		id:      dep.ID,
		rootCtx: root,
		cfg:     dep.Config.withDefaults(),
	}
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

// Receive ingests one upload: size is validated against the configured
// maximum, bytes are spooled to a server-chosen path, and parsing is
// scheduled off the request path. The previous upload of the session, if
// any, is superseded and its spool file queued for cleanup.
func (u *Usecase) Receive(ctx context.Context, in ReceiveInput, r io.Reader) (ReceiveResult, error) {
	if u.store == nil || u.spool == nil || u.id == nil || u.runner == nil {
		return ReceiveResult{}, pkgerror.NewServer(errors.New("missing dependency"))
	}

	if in.SessionID == "" {
		return ReceiveResult{}, pkgerror.NewInvalidInput(errors.New("session id is required"))
	}
	if in.OriginalName == "" {
		return ReceiveResult{}, pkgerror.NewInvalidInput(errors.New("filename is required"))
	}

	// The declared size is untrusted but still useful for failing fast;
	// the spool enforces the same limit on the actual bytes.
	if in.DeclaredSize > u.cfg.MaxUploadBytes {
		u.rejected()
		return ReceiveResult{}, pkgerror.NewTooLarge(u.cfg.MaxUploadBytes)
	}

	path, size, err := u.spool.Stage(r, u.cfg.MaxUploadBytes)
	if err != nil {
		u.rejected()
		if errors.Is(err, spool.ErrTooLarge) {
			return ReceiveResult{}, pkgerror.NewTooLarge(u.cfg.MaxUploadBytes)
		}
		return ReceiveResult{}, normalizeErr(err)
	}

	if size == 0 {
		_ = u.spool.Remove(path)
		u.rejected()
		return ReceiveResult{}, pkgerror.NewInvalidInput(errors.New("upload body is empty"))
	}

	up := entity.Upload{
		ID:           u.id.Generate(),
		SessionID:    in.SessionID,
		OriginalName: in.OriginalName,
		DeclaredSize: in.DeclaredSize,
		DeclaredMIME: in.DeclaredMIME,
		StoragePath:  path,
		Status:       entity.UploadStatusReceived,
		ReceivedAt:   u.clock.Now().Unix(),
	}

	prev, existed, err := u.store.ReplaceUpload(ctx, in.SessionID, up)
	if err != nil {
		_ = u.spool.Remove(path)
		return ReceiveResult{}, normalizeErr(err)
	}

	if existed && prev.StoragePath != "" {
		u.queueCleanup(ctx, in.SessionID, prev.StoragePath)
	}

	if u.metrics != nil {
		u.metrics.UploadReceived(size)
	}

	u.runner.Go(u.rootCtx, func(ctx context.Context) error {
		if err := u.processUpload(ctx, in.SessionID, up); err != nil {
			slog.ErrorContext(ctx, "upload processing failed", "session_id", in.SessionID, "upload_id", up.ID, "error", err)
			return err
		}
		return nil
	})

	return ReceiveResult{UploadID: up.ID, Status: up.Status, SpooledSize: size}, nil
}

// SetOptions replaces the session's cleaning toggles and invalidates the
// memoized cleaned table.
func (u *Usecase) SetOptions(ctx context.Context, sessionID string, opts CleanOptions) error {
	if sessionID == "" {
		return pkgerror.NewInvalidInput(errors.New("session id is required"))
	}

	if err := u.store.SetOptions(ctx, sessionID, opts); err != nil {
		return normalizeErr(err)
	}
	return nil
}

// Status reports the current pipeline stage of the session.
func (u *Usecase) Status(ctx context.Context, sessionID string) (StatusResult, error) {
	if sessionID == "" {
		return StatusResult{}, pkgerror.NewInvalidInput(errors.New("session id is required"))
	}

	sess, err := u.store.Snapshot(ctx, sessionID)
	if err != nil {
		return StatusResult{}, mapStoreErr(err)
	}

	return StatusResult{Upload: sess.Upload, Options: sess.Options}, nil
}

// Preview returns the first rows of the cleaned table. Like Download, it
// blocks until the session's first artifact is ready.
func (u *Usecase) Preview(ctx context.Context, sessionID string, rows int) (PreviewResult, error) {
	if sessionID == "" {
		return PreviewResult{}, pkgerror.NewInvalidInput(errors.New("session id is required"))
	}
	if rows < 1 || rows > u.cfg.PreviewMaxRows {
		rows = u.cfg.PreviewMaxRows
	}

	sess, table, err := u.cleanedTable(ctx, sessionID)
	if err != nil {
		return PreviewResult{}, err
	}

	total := table.Rows()
	if rows > total {
		rows = total
	}

	columns := make([]PreviewColumn, 0, len(table.Columns))
	for _, c := range table.Columns {
		columns = append(columns, PreviewColumn{Name: c.Name, Type: c.Type})
	}

	preview := make([][]string, 0, rows)
	for i := 0; i < rows; i++ {
		preview = append(preview, table.Row(i))
	}

	return PreviewResult{
		UploadID:  sess.Upload.ID,
		Columns:   columns,
		Rows:      preview,
		TotalRows: total,
	}, nil
}

// PrepareDownload builds the download spec for the session's cleaned table.
// The filename is evaluated lazily against current state; the content is
// fully serialized to a spool scratch file and atomically published before
// a single byte reaches the sink.
func (u *Usecase) PrepareDownload(ctx context.Context, sessionID, template string, compress bool) (entity.Download, error) {
	if sessionID == "" {
		return entity.Download{}, pkgerror.NewInvalidInput(errors.New("session id is required"))
	}

	_, table, err := u.cleanedTable(ctx, sessionID)
	if err != nil {
		return entity.Download{}, err
	}

	filename := func() string {
		name := "download.csv"
		if sess, err := u.store.Snapshot(context.Background(), sessionID); err == nil {
			name = renderFilename(template, sess.Upload, table.Rows(), u.clock.Now())
		}
		if compress {
			name += ".lz4"
		}
		return name
	}

	writeContent := func(sink io.Writer) error {
		path, err := u.spool.Publish(func(w io.Writer) error {
			return writeCSV(w, table)
		})
		if err != nil {
			return pkgerror.NewRender(err)
		}
		defer func() {
			_ = u.spool.Remove(path)
		}()

		f, err := u.spool.Open(path)
		if err != nil {
			return pkgerror.NewRender(err)
		}
		defer func() {
			_ = f.Close()
		}()

		encoding := "identity"
		if compress {
			encoding = "lz4"
			zw := lz4.NewWriter(sink)
			if _, err := io.Copy(zw, f); err != nil {
				_ = zw.Close()
				return pkgerror.NewRender(err)
			}
			if err := zw.Close(); err != nil {
				return pkgerror.NewRender(err)
			}
		} else if _, err := io.Copy(sink, f); err != nil {
			return pkgerror.NewRender(err)
		}

		if u.metrics != nil {
			u.metrics.DownloadServed(encoding)
		}
		return nil
	}

	return entity.Download{Filename: filename, WriteContent: writeContent}, nil
}

// cleanedTable waits for the session's first settled upload, surfaces parse
// failures, and returns the memoized cleaned table.
func (u *Usecase) cleanedTable(ctx context.Context, sessionID string) (Session, entity.Table, error) {
	waitCtx, cancel := context.WithTimeout(ctx, u.cfg.WaitTimeout)
	defer cancel()

	sess, err := u.store.AwaitSettled(waitCtx, sessionID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			if u.metrics != nil {
				u.metrics.WaitTimedOut()
			}
			return Session{}, entity.Table{}, pkgerror.NewTimeout("no upload is ready for this session yet")
		}
		return Session{}, entity.Table{}, normalizeErr(err)
	}

	if sess.Upload.Status == entity.UploadStatusFailed {
		return Session{}, entity.Table{}, pkgerror.NewInvalidFormat(errors.New(sess.Upload.Err))
	}

	table, err := u.store.CleanedTable(ctx, sessionID, applyClean)
	if err != nil {
		return Session{}, entity.Table{}, mapStoreErr(err)
	}

	return sess, table, nil
}

// processUpload runs off the request path: it parses the spooled bytes and
// settles the upload as READY or FAILED. A parse failure is user data, not
// a server fault, so it is recorded and not propagated to the runner.
func (u *Usecase) processUpload(ctx context.Context, sessionID string, up entity.Upload) error {
	err := u.store.UpdateUpload(ctx, sessionID, up.ID, func(meta *entity.Upload) {
		meta.Status = entity.UploadStatusParsing
	})
	if errors.Is(err, ErrSuperseded) {
		return nil
	}
	if err != nil {
		return err
	}

	start := u.clock.Now()

	table, parseErr := u.parseSpooled(up)

	duration := u.clock.Now().Sub(start)
	parsedAt := u.clock.Now().Unix()

	if parseErr != nil {
		if u.metrics != nil {
			u.metrics.ParseFinished("failed", duration)
		}

		err := u.store.UpdateUpload(ctx, sessionID, up.ID, func(meta *entity.Upload) {
			meta.Status = entity.UploadStatusFailed
			meta.Err = parseErr.Error()
			meta.ParsedAt = parsedAt
		})
		if errors.Is(err, ErrSuperseded) {
			return nil
		}
		if err != nil {
			return err
		}

		slog.WarnContext(ctx, "upload failed to parse", "session_id", sessionID, "upload_id", up.ID, "error", parseErr)
		return nil
	}

	if err := u.store.SaveTable(ctx, sessionID, up.ID, table); err != nil {
		if errors.Is(err, ErrSuperseded) {
			return nil
		}
		return err
	}

	err = u.store.UpdateUpload(ctx, sessionID, up.ID, func(meta *entity.Upload) {
		meta.Status = entity.UploadStatusReady
		meta.ParsedAt = parsedAt
		meta.RowCount = table.Rows()
		meta.ColCount = len(table.Columns)
	})
	if errors.Is(err, ErrSuperseded) {
		return nil
	}
	if err != nil {
		return err
	}

	if u.metrics != nil {
		u.metrics.ParseFinished("ok", duration)
	}
	return nil
}

func (u *Usecase) parseSpooled(up entity.Upload) (entity.Table, error) {
	f, err := u.spool.Open(up.StoragePath)
	if err != nil {
		return entity.Table{}, err
	}
	defer func() {
		_ = f.Close()
	}()

	return parseUpload(up.OriginalName, f, u.cfg.AllowedExts)
}

func (u *Usecase) queueCleanup(ctx context.Context, sessionID string, paths ...string) {
	if u.events == nil {
		return
	}

	event := entity.SpoolCleanupEvent{
		EventID:   u.id.Generate(),
		SessionID: sessionID,
		Paths:     paths,
	}
	if err := u.events.Publish(ctx, event); err != nil {
		slog.WarnContext(ctx, "failed to publish cleanup event", "session_id", sessionID, "event_id", event.EventID, "error", err)
	}
}

func (u *Usecase) rejected() {
	if u.metrics != nil {
		u.metrics.UploadRejected()
	}
}

func mapStoreErr(err error) error {
	if errors.Is(err, pkgerror.ErrNotFound) {
		return pkgerror.NewBusiness("no upload exists for this session", pkgerror.CodeNotFound)
	}
	return normalizeErr(err)
}

func normalizeErr(err error) error {
	var perr *pkgerror.Error
	if errors.As(err, &perr) {
		return perr
	}
	return pkgerror.NewServer(err)
}
