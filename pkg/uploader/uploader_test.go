package uploader_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/upbridge/pkg/callback"
	"github.com/shashiranjanraj/upbridge/pkg/storage"
	"github.com/shashiranjanraj/upbridge/pkg/uploader"
)

func newUploader(t *testing.T, opts uploader.Options, cbs map[string]callback.Handler) (*uploader.Uploader, *storage.LocalDisk) {
	t.Helper()
	disk, err := storage.NewLocalDisk(t.TempDir(), "http://files.test")
	require.NoError(t, err)
	opts.Disk = disk
	u, err := uploader.New(opts, cbs)
	require.NoError(t, err)
	t.Cleanup(u.Close)
	return u, disk
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(s string) {
	l.mu.Lock()
	l.events = append(l.events, s)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func TestNew_RequiresDisk(t *testing.T) {
	_, err := uploader.New(uploader.Options{}, nil)
	assert.Error(t, err)
}

func TestNew_RejectsNilCallback(t *testing.T) {
	disk, err := storage.NewLocalDisk(t.TempDir(), "")
	require.NoError(t, err)
	_, err = uploader.New(uploader.Options{Disk: disk}, map[string]callback.Handler{"onSubmit": nil})
	assert.Error(t, err)
}

func TestAddFile_SubmitThenUpload(t *testing.T) {
	var log eventLog
	u, disk := newUploader(t, uploader.Options{PathPrefix: "uploads"}, map[string]callback.Handler{
		callback.OnSubmitted: func(args ...any) any { log.add("submitted"); return nil },
	})

	var completed callback.Record
	done := make(chan struct{})
	u.On("complete", func(args ...any) any {
		completed = args[2].(callback.Record)
		close(done)
		return nil
	})

	ctx := context.Background()
	rec, err := u.AddFile(ctx, "notes.txt", strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 0, rec.ID)
	assert.Equal(t, uploader.StatusSubmitted, rec.Status)
	assert.Equal(t, int64(11), rec.Size)
	assert.True(t, strings.HasPrefix(rec.ContentType, "text/plain"))
	assert.Equal(t, []string{"submitted"}, log.snapshot())

	require.NoError(t, u.Upload(ctx, rec.ID))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("onComplete never fired")
	}
	u.Wait()

	got, err := u.GetUpload(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, uploader.StatusUploadSuccessful, got.Status)
	assert.Equal(t, "local", got.Disk)
	assert.Equal(t, "uploads/"+rec.UUID+"/notes.txt", got.Path)
	assert.Equal(t, "http://files.test/"+got.Path, got.URL)
	assert.Equal(t, true, completed["success"])

	data, err := os.ReadFile(filepath.Join(disk.Root(), filepath.FromSlash(got.Path)))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestAddFile_SubmitParamsMergeNewestFirst(t *testing.T) {
	u, _ := newUploader(t, uploader.Options{}, map[string]callback.Handler{
		callback.OnSubmit: func(args ...any) any { return callback.Record{"owner": "default", "bucket": "b1"} },
	})
	u.On("submit", func(args ...any) any {
		return callback.Go(func() (any, error) {
			return callback.Record{"owner": "app", "tag": "x"}, nil
		})
	})

	rec, err := u.AddFile(context.Background(), "a.txt", strings.NewReader("abc"))
	require.NoError(t, err)
	// The constructor handler runs last, so its keys win.
	assert.Equal(t, callback.Record{"owner": "default", "bucket": "b1", "tag": "x"}, rec.Params)
}

func TestAddFile_SubmitVeto(t *testing.T) {
	u, _ := newUploader(t, uploader.Options{AutoUpload: true}, nil)

	var constructorLikeCalled bool
	u.On("submit", func(args ...any) any { constructorLikeCalled = true; return nil })
	u.On("submit", func(args ...any) any { return false })

	var statuses []uploader.Status
	u.On("statusChange", func(args ...any) any {
		statuses = append(statuses, args[2].(uploader.Status))
		return nil
	})

	rec, err := u.AddFile(context.Background(), "a.txt", strings.NewReader("abc"))
	require.ErrorIs(t, err, uploader.ErrRejected)
	require.NotNil(t, rec)
	assert.Equal(t, uploader.StatusRejected, rec.Status)
	assert.False(t, constructorLikeCalled)
	assert.Equal(t, []uploader.Status{uploader.StatusSubmitting, uploader.StatusRejected}, statuses)

	err = u.Upload(context.Background(), rec.ID)
	assert.ErrorIs(t, err, uploader.ErrInvalidState)
}

func TestAddFile_ValidationRules(t *testing.T) {
	u, _ := newUploader(t, uploader.Options{MaxFileSize: 4, AllowedExtensions: []string{"txt"}}, nil)
	ctx := context.Background()

	_, err := u.AddFile(ctx, "big.txt", strings.NewReader("12345"))
	assert.ErrorIs(t, err, uploader.ErrTooLarge)

	_, err = u.AddFile(ctx, "pic.PNG", strings.NewReader("1"))
	assert.ErrorIs(t, err, uploader.ErrExtension)

	_, err = u.AddFile(ctx, "empty.txt", strings.NewReader(""))
	assert.ErrorIs(t, err, uploader.ErrEmptyFile)

	all, err := u.GetUploads(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "invalid files never get a record")
}

func TestAddFile_OnValidateRejects(t *testing.T) {
	u, _ := newUploader(t, uploader.Options{}, map[string]callback.Handler{
		callback.OnValidate: func(args ...any) any {
			info := args[0].(uploader.FileInfo)
			if strings.HasSuffix(info.Name, ".exe") {
				return callback.Rejected(errors.New("no executables"))
			}
			return nil
		},
	})

	_, err := u.AddFile(context.Background(), "tool.exe", strings.NewReader("MZ"))
	assert.ErrorIs(t, err, uploader.ErrRejected)
	assert.Contains(t, err.Error(), "no executables")

	_, err = u.AddFile(context.Background(), "ok.txt", strings.NewReader("fine"))
	assert.NoError(t, err)
}

func TestAddFiles_BatchValidation(t *testing.T) {
	u, _ := newUploader(t, uploader.Options{}, nil)

	var seen int
	h := u.On("validateBatch", func(args ...any) any {
		seen = len(args[0].([]uploader.FileInfo))
		return seen <= 2
	})

	files := []uploader.File{{Name: "a.txt", Data: []byte("a")}, {Name: "b.txt", Data: []byte("b")}, {Name: "c.txt", Data: []byte("c")}}
	_, err := u.AddFiles(context.Background(), files)
	assert.ErrorIs(t, err, uploader.ErrRejected)
	assert.Equal(t, 3, seen)

	u.Off("validateBatch", h)
	recs, err := u.AddFiles(context.Background(), files[:2])
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 0, recs[0].ID)
	assert.Equal(t, 1, recs[1].ID)
}

func TestAddFile_NameIsSanitised(t *testing.T) {
	u, _ := newUploader(t, uploader.Options{}, nil)
	rec, err := u.AddFile(context.Background(), `..\..\etc/passwd`, strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "passwd", rec.Name)
}

func TestUpload_ProgressAndAllComplete(t *testing.T) {
	u, _ := newUploader(t, uploader.Options{AutoUpload: true}, nil)

	var (
		mu       sync.Mutex
		progress []int64
	)
	u.On("progress", func(args ...any) any {
		mu.Lock()
		progress = append(progress, args[2].(int64))
		mu.Unlock()
		return nil
	})
	all := make(chan []int, 1)
	u.On("allComplete", func(args ...any) any {
		all <- args[0].([]int)
		return nil
	})

	payload := bytes.Repeat([]byte("z"), 64<<10)
	rec, err := u.AddFile(context.Background(), "z.bin", bytes.NewReader(payload))
	require.NoError(t, err)

	select {
	case ids := <-all:
		assert.Equal(t, []int{rec.ID}, ids)
	case <-time.After(2 * time.Second):
		t.Fatal("onAllComplete never fired")
	}
	u.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, progress)
	assert.Equal(t, int64(len(payload)), progress[len(progress)-1])
}

func TestUpload_OnUploadRejectionFailsAndRetrySucceeds(t *testing.T) {
	u, _ := newUploader(t, uploader.Options{}, nil)
	ctx := context.Background()

	var attempts int
	var mu sync.Mutex
	u.On("upload", func(args ...any) any {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return false
		}
		return callback.Record{"attempt": attempts}
	})
	errs := make(chan string, 1)
	u.On("error", func(args ...any) any { errs <- args[2].(string); return nil })

	rec, err := u.AddFile(ctx, "r.txt", strings.NewReader("retry me"))
	require.NoError(t, err)
	require.NoError(t, u.Upload(ctx, rec.ID))
	u.Wait()

	select {
	case reason := <-errs:
		assert.Contains(t, reason, "rejected")
	default:
		t.Fatal("onError did not fire")
	}
	got, err := u.GetUpload(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, uploader.StatusUploadFailed, got.Status)

	require.NoError(t, u.Retry(ctx, rec.ID))
	u.Wait()

	got, err = u.GetUpload(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, uploader.StatusUploadSuccessful, got.Status)
	assert.Equal(t, 2, got.Params["attempt"])
	assert.Empty(t, got.Error)
}

func TestRetry_ManualRetryVeto(t *testing.T) {
	u, _ := newUploader(t, uploader.Options{}, nil)
	ctx := context.Background()

	u.On("upload", func(args ...any) any { return false })
	u.On("manualRetry", func(args ...any) any { return false })

	rec, err := u.AddFile(ctx, "v.txt", strings.NewReader("v"))
	require.NoError(t, err)
	require.NoError(t, u.Upload(ctx, rec.ID))
	u.Wait()

	err = u.Retry(ctx, rec.ID)
	assert.ErrorIs(t, err, uploader.ErrRejected)
}

func TestCancel(t *testing.T) {
	u, _ := newUploader(t, uploader.Options{}, nil)
	ctx := context.Background()

	rec, err := u.AddFile(ctx, "c.txt", strings.NewReader("c"))
	require.NoError(t, err)

	veto := u.On("cancel", func(args ...any) any { return false })
	assert.ErrorIs(t, u.Cancel(ctx, rec.ID), uploader.ErrRejected)

	u.Off("cancel", veto)
	require.NoError(t, u.Cancel(ctx, rec.ID))

	got, err := u.GetUpload(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, uploader.StatusCanceled, got.Status)

	assert.ErrorIs(t, u.Upload(ctx, rec.ID), uploader.ErrInvalidState)
	assert.ErrorIs(t, u.Cancel(ctx, rec.ID), uploader.ErrInvalidState)
}

func TestPrune_RemovesOnlyFinishedRecords(t *testing.T) {
	u, _ := newUploader(t, uploader.Options{}, map[string]callback.Handler{
		callback.OnSubmit: func(args ...any) any {
			if args[1] == "rejected.txt" {
				return false
			}
			return nil
		},
	})
	ctx := context.Background()

	canceled, err := u.AddFile(ctx, "canceled.txt", strings.NewReader("a"))
	require.NoError(t, err)
	require.NoError(t, u.Cancel(ctx, canceled.ID))

	_, err = u.AddFile(ctx, "rejected.txt", strings.NewReader("b"))
	require.ErrorIs(t, err, uploader.ErrRejected)

	deleted, err := u.AddFile(ctx, "deleted.txt", strings.NewReader("c"))
	require.NoError(t, err)
	require.NoError(t, u.Upload(ctx, deleted.ID))
	u.Wait()
	require.NoError(t, u.Delete(ctx, deleted.ID))

	kept, err := u.AddFile(ctx, "kept.txt", strings.NewReader("d"))
	require.NoError(t, err)

	n, err := u.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	recs, err := u.GetUploads(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, kept.ID, recs[0].ID)
	assert.Equal(t, uploader.StatusSubmitted, recs[0].Status)

	_, err = u.GetUpload(ctx, canceled.ID)
	assert.ErrorIs(t, err, uploader.ErrNotFound)

	n, err = u.Prune(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDelete(t *testing.T) {
	u, disk := newUploader(t, uploader.Options{AutoUpload: true}, nil)
	ctx := context.Background()

	rec, err := u.AddFile(ctx, "d.txt", strings.NewReader("delete me"))
	require.NoError(t, err)
	u.Wait()

	got, err := u.GetUpload(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, uploader.StatusUploadSuccessful, got.Status)

	veto := u.On("submitDelete", func(args ...any) any { return false })
	assert.ErrorIs(t, u.Delete(ctx, rec.ID), uploader.ErrRejected)
	u.Off("submitDelete", veto)

	var deleteErr any = "unset"
	u.On("deleteComplete", func(args ...any) any { deleteErr = args[1]; return nil })

	require.NoError(t, u.Delete(ctx, rec.ID))
	assert.Nil(t, deleteErr)

	got, err = u.GetUpload(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, uploader.StatusDeleted, got.Status)

	exists, err := disk.Exists(ctx, got.Path)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGetUpload_NotFound(t *testing.T) {
	u, _ := newUploader(t, uploader.Options{}, nil)
	_, err := u.GetUpload(context.Background(), 42)
	assert.ErrorIs(t, err, uploader.ErrNotFound)
	assert.ErrorIs(t, u.Cancel(context.Background(), 42), uploader.ErrNotFound)
}

func TestUploadStoredFiles(t *testing.T) {
	u, _ := newUploader(t, uploader.Options{}, nil)
	ctx := context.Background()

	a, err := u.AddFile(ctx, "a.txt", strings.NewReader("a"))
	require.NoError(t, err)
	b, err := u.AddFile(ctx, "b.txt", strings.NewReader("b"))
	require.NoError(t, err)
	require.NoError(t, u.Cancel(ctx, b.ID))

	n, err := u.UploadStoredFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	u.Wait()

	got, err := u.GetUpload(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, uploader.StatusUploadSuccessful, got.Status)
}
