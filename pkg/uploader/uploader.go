// Package uploader is the upload engine that raises callback events.
//
// An Uploader owns one callback.Set. Constructor callbacks are registered
// first; anything added later with On runs after them in sync events and
// before them in chained events, so application handlers get the first say
// on what a chained event resolves to.
//
//	up, _ := uploader.New(uploader.Options{Disk: disk}, map[string]callback.Handler{
//	    callback.OnSubmit: func(args ...any) any { return callback.Record{"owner": "svc"} },
//	})
//	up.On("submit", func(args ...any) any {
//	    return callback.Go(func() (any, error) { return lookupQuota(args[0].(int)) })
//	})
//	rec, err := up.AddFile(ctx, "report.pdf", file)
package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/shashiranjanraj/upbridge/pkg/callback"
	"github.com/shashiranjanraj/upbridge/pkg/logger"
	"github.com/shashiranjanraj/upbridge/pkg/metrics"
	"github.com/shashiranjanraj/upbridge/pkg/storage"
	"github.com/shashiranjanraj/upbridge/pkg/workerpool"
)

var (
	// ErrNotFound is returned for unknown upload ids.
	ErrNotFound = errors.New("uploader: upload not found")
	// ErrRejected is returned when a callback vetoes an operation.
	ErrRejected = errors.New("uploader: rejected by callback")
	// ErrTooLarge is returned when a file exceeds Options.MaxFileSize.
	ErrTooLarge = errors.New("uploader: file too large")
	// ErrEmptyFile is returned for zero-byte files.
	ErrEmptyFile = errors.New("uploader: file is empty")
	// ErrExtension is returned when a file's extension is not allowed.
	ErrExtension = errors.New("uploader: extension not allowed")
	// ErrInvalidState is returned when an operation does not apply to the
	// upload's current status.
	ErrInvalidState = errors.New("uploader: invalid state")
)

// Options configures an Uploader.
type Options struct {
	// Disk receives the uploaded blobs. Required.
	Disk storage.Disk
	// Store keeps upload records. Defaults to a MemoryStore.
	Store Store
	// Pool runs uploads. Defaults to a private pool of 4 workers that
	// Close shuts down.
	Pool *workerpool.Pool
	// AutoUpload queues files for upload as soon as they are submitted.
	AutoUpload bool
	// MaxFileSize in bytes; 0 means unlimited.
	MaxFileSize int64
	// AllowedExtensions without the dot, lower-case; empty allows any.
	AllowedExtensions []string
	// PathPrefix is prepended to every object path.
	PathPrefix string
	// Classifier overrides the sync/chained catalogue.
	Classifier callback.Classifier
}

// Uploader is the engine. It is safe for concurrent use.
type Uploader struct {
	opts      Options
	disk      storage.Disk
	store     Store
	pool      *workerpool.Pool
	ownsPool  bool
	callbacks *callback.Set

	// stateMu serialises read-modify-write cycles on records.
	stateMu sync.Mutex

	blobMu sync.Mutex
	blobs  map[int][]byte

	batchMu   sync.Mutex
	inFlight  int
	succeeded []int
	failed    []int
	wg        sync.WaitGroup
}

// New builds an Uploader. callbacks maps event names (short or option form)
// to handlers registered before any added with On.
func New(opts Options, callbacks map[string]callback.Handler) (*Uploader, error) {
	if opts.Disk == nil {
		return nil, errors.New("uploader: a disk is required")
	}

	u := &Uploader{
		opts:      opts,
		disk:      opts.Disk,
		store:     opts.Store,
		pool:      opts.Pool,
		callbacks: callback.NewSet(opts.Classifier),
		blobs:     map[int][]byte{},
	}
	if u.store == nil {
		u.store = NewMemoryStore()
	}
	if u.pool == nil {
		u.pool = workerpool.New("uploads", 4)
		u.ownsPool = true
	}

	names := make([]string, 0, len(callbacks))
	for name := range callbacks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h := callbacks[name]
		if h == nil {
			return nil, fmt.Errorf("uploader: nil callback for %q", name)
		}
		u.callbacks.On(name, h)
	}
	return u, nil
}

// On registers h for event ("submit" or "onSubmit").
func (u *Uploader) On(event string, h callback.Handler) *callback.Handle {
	return u.callbacks.On(event, h)
}

// Off removes a registration made with On.
func (u *Uploader) Off(event string, h *callback.Handle) {
	u.callbacks.Off(event, h)
}

// Callbacks exposes the engine's registries.
func (u *Uploader) Callbacks() *callback.Set { return u.callbacks }

// Disk returns the disk uploads are written to.
func (u *Uploader) Disk() storage.Disk { return u.disk }

// ─── Submission ──────────────────────────────────────────────────────────────

// AddFile reads r and submits it as name. With AutoUpload the file is also
// queued. A callback veto yields the rejected record and an error wrapping
// ErrRejected.
func (u *Uploader) AddFile(ctx context.Context, name string, r io.Reader) (*Upload, error) {
	data, err := u.read(r)
	if err != nil {
		return nil, err
	}
	return u.submit(ctx, name, data)
}

// AddFiles submits a batch. onValidateBatch sees every file first and may
// reject the whole batch; each file then goes through AddFile's flow.
func (u *Uploader) AddFiles(ctx context.Context, files []File) ([]*Upload, error) {
	infos := make([]FileInfo, len(files))
	for i, f := range files {
		infos[i] = fileInfo(cleanName(f.Name), f.Data)
	}
	if _, err := u.chain(ctx, callback.OnValidateBatch, infos); err != nil {
		return nil, err
	}

	var (
		out  []*Upload
		errs []error
	)
	for _, f := range files {
		rec, err := u.submit(ctx, f.Name, f.Data)
		if rec != nil {
			out = append(out, rec)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
		}
	}
	return out, errors.Join(errs...)
}

func (u *Uploader) read(r io.Reader) ([]byte, error) {
	if u.opts.MaxFileSize > 0 {
		r = io.LimitReader(r, u.opts.MaxFileSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("uploader: read: %w", err)
	}
	if u.opts.MaxFileSize > 0 && int64(len(data)) > u.opts.MaxFileSize {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, u.opts.MaxFileSize)
	}
	return data, nil
}

func (u *Uploader) submit(ctx context.Context, name string, data []byte) (*Upload, error) {
	name = cleanName(name)
	info := fileInfo(name, data)

	if _, err := u.chain(ctx, callback.OnValidate, info); err != nil {
		return nil, err
	}
	if err := u.validate(info); err != nil {
		return nil, err
	}

	id, err := u.store.NextID(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	rec := &Upload{
		ID:          id,
		UUID:        uuid.NewString(),
		Name:        name,
		Size:        info.Size,
		ContentType: info.ContentType,
		Status:      StatusSubmitting,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := u.store.Save(ctx, rec); err != nil {
		return nil, err
	}
	u.fire(callback.OnStatusChange, id, Status(""), StatusSubmitting)

	result, err := u.chain(ctx, callback.OnSubmit, id, name)
	if err != nil {
		rejected, _, terr := u.transition(ctx, id, StatusRejected, nil, nil)
		if terr != nil {
			return nil, terr
		}
		logger.WithCtx(ctx).Info("upload rejected", "upload_id", id, "event", callback.OnSubmit, "error", err)
		return rejected, err
	}

	u.stashBlob(id, data)
	rec, _, err = u.transition(ctx, id, StatusSubmitted, []Status{StatusSubmitting}, func(r *Upload) {
		r.Params = mergeParams(r.Params, result)
	})
	if err != nil {
		u.dropBlob(id)
		return nil, err
	}
	u.fire(callback.OnSubmitted, id, name)

	if !u.opts.AutoUpload {
		return rec, nil
	}
	if err := u.Upload(ctx, id); err != nil {
		return rec, err
	}
	return u.store.Get(ctx, id)
}

func (u *Uploader) validate(info FileInfo) error {
	if info.Size == 0 {
		return ErrEmptyFile
	}
	if u.opts.MaxFileSize > 0 && info.Size > u.opts.MaxFileSize {
		return fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, u.opts.MaxFileSize)
	}
	if len(u.opts.AllowedExtensions) > 0 {
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(info.Name), "."))
		if !slices.Contains(u.opts.AllowedExtensions, ext) {
			return fmt.Errorf("%w: %q", ErrExtension, ext)
		}
	}
	return nil
}

// ─── Upload ──────────────────────────────────────────────────────────────────

// Upload queues a submitted (or failed) file on the pool. It returns once the
// task is queued; completion is reported through onComplete.
func (u *Uploader) Upload(ctx context.Context, id int) error {
	if _, ok := u.blob(id); !ok {
		rec, err := u.store.Get(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: upload %d has no pending data (%s)", ErrInvalidState, id, rec.Status)
	}
	_, prev, err := u.transition(ctx, id, StatusQueued, []Status{StatusSubmitted, StatusUploadFailed}, func(r *Upload) {
		r.Error = ""
	})
	if err != nil {
		return err
	}

	u.begin()
	bg := context.WithoutCancel(ctx)
	if err := u.pool.SubmitWait(ctx, func() { u.run(bg, id) }); err != nil {
		u.settle(id, false, false)
		_, _, _ = u.transition(bg, id, prev, []Status{StatusQueued}, nil)
		return fmt.Errorf("uploader: queue upload %d: %w", id, err)
	}
	return nil
}

// UploadStoredFiles queues every submitted file that has not been uploaded
// yet, which is how a manual-upload flow (AutoUpload off) is started.
func (u *Uploader) UploadStoredFiles(ctx context.Context) (int, error) {
	recs, err := u.store.List(ctx)
	if err != nil {
		return 0, err
	}
	var (
		queued int
		errs   []error
	)
	for _, rec := range recs {
		if rec.Status != StatusSubmitted {
			continue
		}
		if _, ok := u.blob(rec.ID); !ok {
			continue
		}
		if err := u.Upload(ctx, rec.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		queued++
	}
	return queued, errors.Join(errs...)
}

func (u *Uploader) run(ctx context.Context, id int) {
	var ok bool
	counted := true
	defer func() { u.settle(id, ok, counted) }()

	rec, err := u.store.Get(ctx, id)
	if err != nil {
		logger.WithCtx(ctx).Error("upload record vanished", "upload_id", id, "error", err)
		counted = false
		return
	}
	if rec.Status != StatusQueued {
		// Canceled while waiting in the backlog.
		counted = false
		return
	}

	result, err := u.chain(ctx, callback.OnUpload, id, rec.Name)
	if err != nil {
		u.fail(ctx, rec, err)
		return
	}
	rec, _, err = u.transition(ctx, id, StatusUploading, []Status{StatusQueued}, func(r *Upload) {
		r.Params = mergeParams(r.Params, result)
	})
	if errors.Is(err, ErrInvalidState) {
		counted = false
		return
	}
	if err != nil {
		logger.WithCtx(ctx).Error("upload state change failed", "upload_id", id, "error", err)
		return
	}

	data, found := u.blob(id)
	if !found {
		u.fail(ctx, rec, errors.New("pending data missing"))
		return
	}

	key := u.objectPath(rec)
	total := int64(len(data))
	pr := &progressReader{r: bytes.NewReader(data), report: func(done int64) {
		u.fire(callback.OnProgress, id, rec.Name, done, total)
	}}
	start := time.Now()
	if err := u.disk.Put(ctx, key, pr, total, rec.ContentType); err != nil {
		u.fail(ctx, rec, err)
		return
	}
	metrics.RecordUpload(u.disk.Name(), total, start)

	url := u.disk.URL(key)
	rec, _, err = u.transition(ctx, id, StatusUploadSuccessful, []Status{StatusUploading}, func(r *Upload) {
		r.Disk = u.disk.Name()
		r.Path = key
		r.URL = url
	})
	if err != nil {
		logger.WithCtx(ctx).Error("upload state change failed", "upload_id", id, "error", err)
		return
	}
	u.dropBlob(id)
	ok = true

	logger.WithCtx(ctx).Info("upload stored",
		"upload_id", id, "uuid", rec.UUID, "disk", rec.Disk, "path", key, "size", total,
		"duration_ms", time.Since(start).Milliseconds())
	u.fire(callback.OnComplete, id, rec.Name, callback.Record{"success": true, "uuid": rec.UUID, "url": url}, nil)
}

// fail marks rec as failed and raises onError and onComplete. The blob is
// kept so Retry can re-queue it.
func (u *Uploader) fail(ctx context.Context, rec *Upload, cause error) {
	reason := cause.Error()
	if _, _, err := u.transition(ctx, rec.ID, StatusUploadFailed, []Status{StatusQueued, StatusUploading}, func(r *Upload) {
		r.Error = reason
	}); err != nil {
		logger.WithCtx(ctx).Error("upload state change failed", "upload_id", rec.ID, "error", err)
		return
	}
	logger.WithCtx(ctx).Warn("upload failed", "upload_id", rec.ID, "error", reason)
	u.fire(callback.OnError, rec.ID, rec.Name, reason)
	u.fire(callback.OnComplete, rec.ID, rec.Name, callback.Record{"success": false, "error": reason}, cause)
}

func (u *Uploader) begin() {
	u.batchMu.Lock()
	u.inFlight++
	u.wg.Add(1)
	u.batchMu.Unlock()
}

// settle closes one in-flight upload. When the last one settles,
// onAllComplete receives the ids that succeeded and failed since the
// previous batch ended.
func (u *Uploader) settle(id int, ok, counted bool) {
	defer u.wg.Done()

	u.batchMu.Lock()
	u.inFlight--
	if counted {
		if ok {
			u.succeeded = append(u.succeeded, id)
		} else {
			u.failed = append(u.failed, id)
		}
	}
	if u.inFlight > 0 || (len(u.succeeded) == 0 && len(u.failed) == 0) {
		u.batchMu.Unlock()
		return
	}
	succeeded, failed := u.succeeded, u.failed
	u.succeeded, u.failed = nil, nil
	u.batchMu.Unlock()

	if succeeded == nil {
		succeeded = []int{}
	}
	if failed == nil {
		failed = []int{}
	}
	u.fire(callback.OnAllComplete, succeeded, failed)
}

type progressReader struct {
	r      io.Reader
	done   int64
	report func(done int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		p.report(p.done)
	}
	return n, err
}

// ─── Queries ─────────────────────────────────────────────────────────────────

// GetUpload returns the record for id.
func (u *Uploader) GetUpload(ctx context.Context, id int) (*Upload, error) {
	return u.store.Get(ctx, id)
}

// GetUploads returns every record ordered by id.
func (u *Uploader) GetUploads(ctx context.Context) ([]*Upload, error) {
	return u.store.List(ctx)
}

// ─── Cancel / Retry / Delete ─────────────────────────────────────────────────

var (
	cancelable = []Status{StatusSubmitted, StatusQueued, StatusUploadFailed}
	deletable  = []Status{StatusUploadSuccessful, StatusDeleteFailed}
)

// Cancel withdraws an upload that has not started writing. onCancel may veto.
func (u *Uploader) Cancel(ctx context.Context, id int) error {
	rec, err := u.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !slices.Contains(cancelable, rec.Status) {
		return fmt.Errorf("%w: cannot cancel upload %d while %s", ErrInvalidState, id, rec.Status)
	}
	if _, err := u.chain(ctx, callback.OnCancel, id, rec.Name); err != nil {
		return err
	}
	if _, _, err := u.transition(ctx, id, StatusCanceled, cancelable, nil); err != nil {
		return err
	}
	u.dropBlob(id)
	return nil
}

// Retry re-queues a failed upload unless onManualRetry returns false.
func (u *Uploader) Retry(ctx context.Context, id int) error {
	rec, err := u.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status != StatusUploadFailed {
		return fmt.Errorf("%w: cannot retry upload %d while %s", ErrInvalidState, id, rec.Status)
	}
	if out := u.fire(callback.OnManualRetry, id, rec.Name); out == false {
		return fmt.Errorf("%w: %s", ErrRejected, callback.OnManualRetry)
	}
	return u.Upload(ctx, id)
}

// Delete removes a stored blob. onSubmitDelete may veto.
func (u *Uploader) Delete(ctx context.Context, id int) error {
	rec, err := u.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !slices.Contains(deletable, rec.Status) {
		return fmt.Errorf("%w: cannot delete upload %d while %s", ErrInvalidState, id, rec.Status)
	}
	if _, err := u.chain(ctx, callback.OnSubmitDelete, id); err != nil {
		return err
	}
	rec, _, err = u.transition(ctx, id, StatusDeleting, deletable, nil)
	if err != nil {
		return err
	}

	u.fire(callback.OnDelete, id)
	derr := u.disk.Delete(ctx, rec.Path)
	u.fire(callback.OnDeleteComplete, id, derr)

	if derr != nil {
		_, _, _ = u.transition(ctx, id, StatusDeleteFailed, []Status{StatusDeleting}, func(r *Upload) {
			r.Error = derr.Error()
		})
		return fmt.Errorf("uploader: delete %d: %w", id, derr)
	}
	_, _, err = u.transition(ctx, id, StatusDeleted, []Status{StatusDeleting}, func(r *Upload) {
		r.URL = ""
		r.Error = ""
	})
	return err
}

// prunable states are terminal and hold no stored blob.
var prunable = []Status{StatusRejected, StatusCanceled, StatusDeleted}

// Prune removes the records of rejected, canceled and deleted files and
// returns how many were removed. Ids are never reused.
func (u *Uploader) Prune(ctx context.Context) (int, error) {
	recs, err := u.store.List(ctx)
	if err != nil {
		return 0, err
	}
	var (
		removed int
		errs    []error
	)
	for _, rec := range recs {
		if !slices.Contains(prunable, rec.Status) {
			continue
		}
		if err := u.store.Delete(ctx, rec.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Debug("uploader: pruned records", "count", removed)
	}
	return removed, errors.Join(errs...)
}

// ─── Lifecycle ───────────────────────────────────────────────────────────────

// Wait blocks until every queued upload has finished.
func (u *Uploader) Wait() { u.wg.Wait() }

// Close waits for queued uploads and shuts down the pool if the Uploader
// created it.
func (u *Uploader) Close() {
	u.wg.Wait()
	if u.ownsPool {
		u.pool.Shutdown()
	}
}

// ─── Internals ───────────────────────────────────────────────────────────────

func (u *Uploader) fire(event string, args ...any) any {
	return u.callbacks.Dispatch(event)(args...)
}

// chain dispatches event and waits for its outcome. A plain false (from a
// classifier that made the event sync) is treated as a rejection too.
func (u *Uploader) chain(ctx context.Context, event string, args ...any) (any, error) {
	out := u.callbacks.Dispatch(event)(args...)
	p, ok := out.(*callback.Promise)
	if !ok {
		if out == false {
			return nil, fmt.Errorf("%w: %s", ErrRejected, event)
		}
		return out, nil
	}

	v, err := p.Await(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("uploader: %s: %w", event, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrRejected, event, err)
	}
	return v, nil
}

// transition moves id to status to when its current status is in from (any
// status when from is empty), applies mutate, saves, and fires
// onStatusChange.
func (u *Uploader) transition(ctx context.Context, id int, to Status, from []Status, mutate func(*Upload)) (*Upload, Status, error) {
	u.stateMu.Lock()
	rec, err := u.store.Get(ctx, id)
	if err != nil {
		u.stateMu.Unlock()
		return nil, "", err
	}
	old := rec.Status
	if len(from) > 0 && !slices.Contains(from, old) {
		u.stateMu.Unlock()
		return rec, old, fmt.Errorf("%w: upload %d is %s, not %v", ErrInvalidState, id, old, from)
	}
	rec.Status = to
	rec.UpdatedAt = time.Now()
	if mutate != nil {
		mutate(rec)
	}
	err = u.store.Save(ctx, rec)
	u.stateMu.Unlock()
	if err != nil {
		return nil, old, err
	}

	if to.Terminal() {
		metrics.RecordFinished(string(to))
	}
	u.fire(callback.OnStatusChange, id, old, to)
	return rec, old, nil
}

func (u *Uploader) stashBlob(id int, data []byte) {
	u.blobMu.Lock()
	u.blobs[id] = data
	u.blobMu.Unlock()
}

func (u *Uploader) blob(id int) ([]byte, bool) {
	u.blobMu.Lock()
	defer u.blobMu.Unlock()
	data, ok := u.blobs[id]
	return data, ok
}

func (u *Uploader) dropBlob(id int) {
	u.blobMu.Lock()
	delete(u.blobs, id)
	u.blobMu.Unlock()
}

func (u *Uploader) objectPath(rec *Upload) string {
	return path.Join(u.opts.PathPrefix, rec.UUID, rec.Name)
}

func fileInfo(name string, data []byte) FileInfo {
	return FileInfo{
		Name:        name,
		Size:        int64(len(data)),
		ContentType: mimetype.Detect(data).String(),
	}
}

func cleanName(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}

// mergeParams folds a chained result onto the record's params. Only record
// results contribute.
func mergeParams(prev callback.Record, result any) callback.Record {
	var rec map[string]any
	switch r := result.(type) {
	case callback.Record:
		rec = r
	case map[string]any:
		rec = r
	}
	if rec == nil {
		return prev
	}
	out := make(callback.Record, len(prev)+len(rec))
	maps.Copy(out, prev)
	maps.Copy(out, rec)
	return out
}
