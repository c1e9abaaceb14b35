package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/upbridge/app/controllers"
	"github.com/shashiranjanraj/upbridge/app/routes"
	"github.com/shashiranjanraj/upbridge/pkg/auth"
	"github.com/shashiranjanraj/upbridge/pkg/callback"
	"github.com/shashiranjanraj/upbridge/pkg/router"
	"github.com/shashiranjanraj/upbridge/pkg/sse"
	"github.com/shashiranjanraj/upbridge/pkg/storage"
	"github.com/shashiranjanraj/upbridge/pkg/uploader"
	"github.com/shashiranjanraj/upbridge/pkg/ws"
)

type reply struct {
	Status       int             `json:"status"`
	Success      bool            `json:"success"`
	NewUUID      string          `json:"newUuid"`
	Error        string          `json:"error"`
	PreventRetry bool            `json:"preventRetry"`
	Data         json.RawMessage `json:"data"`
}

func newAPI(t *testing.T, authOn bool, cbs map[string]callback.Handler) (http.Handler, *uploader.Uploader) {
	t.Helper()
	disk, err := storage.NewLocalDisk(t.TempDir(), "http://files.test")
	require.NoError(t, err)
	up, err := uploader.New(uploader.Options{Disk: disk, AutoUpload: true, MaxFileSize: 1 << 10}, cbs)
	require.NoError(t, err)
	t.Cleanup(up.Close)

	r := router.New()
	routes.RegisterAPI(r, routes.API{
		Uploads:     controllers.NewUploadController(up, 1<<10),
		Callbacks:   controllers.NewCallbackController(up),
		Events:      controllers.NewEventController(ws.NewHub(), sse.NewBroker()),
		AuthEnabled: authOn,
	})
	return r.Handler(), up
}

func multipartBody(t *testing.T, name string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("qquuid", "client-side-uuid"))
	require.NoError(t, mw.WriteField("qqfilename", name))
	part, err := mw.CreateFormFile("qqfile", name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, reply) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestStore_UploadsAndReturnsNewUUID(t *testing.T) {
	h, up := newAPI(t, false, nil)

	body, ct := multipartBody(t, "notes.txt", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", ct)

	rec, out := do(t, h, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, out.Success)
	assert.NotEmpty(t, out.NewUUID)

	var u uploader.Upload
	require.NoError(t, json.Unmarshal(out.Data, &u))
	assert.Equal(t, out.NewUUID, u.UUID)

	up.Wait()
	stored, err := up.GetUpload(req.Context(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", stored.Name)
	assert.Equal(t, uploader.StatusUploadSuccessful, stored.Status)
}

func TestStore_CallbackVetoPreventsRetry(t *testing.T) {
	h, _ := newAPI(t, false, map[string]callback.Handler{
		callback.OnSubmit: func(args ...any) any { return false },
	})

	body, ct := multipartBody(t, "a.txt", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", ct)

	rec, out := do(t, h, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.False(t, out.Success)
	assert.True(t, out.PreventRetry)
}

func TestStore_MissingFile(t *testing.T) {
	h, _ := newAPI(t, false, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("qqfilename", "a.txt"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec, out := do(t, h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing qqfile", out.Error)
}

func TestStore_TooLarge(t *testing.T) {
	h, _ := newAPI(t, false, nil)

	body, ct := multipartBody(t, "big.bin", bytes.Repeat([]byte("a"), 2<<10))
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", ct)

	rec, out := do(t, h, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.False(t, out.Success)
}

func TestShow_UnknownAndInvalidIDs(t *testing.T) {
	h, _ := newAPI(t, false, nil)

	rec, _ := do(t, h, httptest.NewRequest(http.MethodGet, "/api/uploads/42", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, h, httptest.NewRequest(http.MethodGet, "/api/uploads/abc", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDestroy_ThenCancelConflicts(t *testing.T) {
	h, up := newAPI(t, false, nil)

	rec, err := up.AddFile(context.Background(), "a.txt", bytes.NewReader([]byte("abc")))
	require.NoError(t, err)
	up.Wait()

	res, out := do(t, h, httptest.NewRequest(http.MethodDelete, "/api/uploads/0", nil))
	require.Equal(t, http.StatusOK, res.Code)
	var u uploader.Upload
	require.NoError(t, json.Unmarshal(out.Data, &u))
	assert.Equal(t, uploader.StatusDeleted, u.Status)
	assert.Equal(t, rec.UUID, out.NewUUID)

	res, out = do(t, h, httptest.NewRequest(http.MethodPost, "/api/uploads/0/cancel", nil))
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.True(t, out.PreventRetry)
}

func TestPrune_ForgetsRejectedUploads(t *testing.T) {
	h, up := newAPI(t, false, map[string]callback.Handler{
		callback.OnSubmit: func(args ...any) any { return false },
	})
	_, err := up.AddFile(context.Background(), "a.txt", bytes.NewReader([]byte("abc")))
	require.ErrorIs(t, err, uploader.ErrRejected)

	res, out := do(t, h, httptest.NewRequest(http.MethodPost, "/api/uploads/prune", nil))
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"removed":1}`, string(out.Data))

	recs, err := up.GetUploads(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestCallbacks_ListsCatalogue(t *testing.T) {
	h, _ := newAPI(t, false, map[string]callback.Handler{
		callback.OnSubmit: func(args ...any) any { return nil },
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/callbacks", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []controllers.CallbackInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, len(callback.All))

	for _, info := range body.Data {
		if info.Option == callback.OnSubmit {
			assert.Equal(t, "chained", info.Mode)
			assert.Equal(t, "submit", info.Event)
			assert.Equal(t, 1, info.Handlers)
		}
	}
}

func TestAuth_ReadersCannotWrite(t *testing.T) {
	h, _ := newAPI(t, true, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/uploads", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	reader, err := auth.GenerateToken("bob", "viewer", 0)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/uploads", nil)
	req.Header.Set("Authorization", "Bearer "+reader)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	body, ct := multipartBody(t, "a.txt", []byte("x"))
	req = httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer "+reader)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	writer, err := auth.GenerateToken("alice", "uploader", 0)
	require.NoError(t, err)
	body, ct = multipartBody(t, "a.txt", []byte("x"))
	req = httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer "+writer)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}
