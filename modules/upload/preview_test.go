package upload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTempStore(t *testing.T) *TempPreviewStore {
	t.Helper()
	store, err := NewTempPreviewStore(filepath.Join(t.TempDir(), "previews"), "/previews/")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func dirEntries(t *testing.T, store *TempPreviewStore) int {
	t.Helper()
	entries, err := os.ReadDir(store.dir)
	require.NoError(t, err)
	return len(entries)
}

func TestTempPreviewStore_OpenServeRelease(t *testing.T) {
	store := newTempStore(t)

	p, err := store.Open("clip.mp4", "video/mp4", strings.NewReader("video-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "/previews/"+p.Token, p.URL)
	assert.EqualValues(t, 11, p.Size)
	assert.Equal(t, 1, store.Live())

	rec := httptest.NewRecorder()
	store.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p.URL, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, "video-bytes", rec.Body.String())

	require.NoError(t, store.Release(p.URL))
	assert.Zero(t, store.Live())
	assert.Zero(t, dirEntries(t, store))

	rec = httptest.NewRecorder()
	store.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p.URL, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTempPreviewStore_RangeRequest(t *testing.T) {
	store := newTempStore(t)
	p, err := store.Open("clip.mp4", "video/mp4", strings.NewReader("0123456789"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, p.URL, nil)
	req.Header.Set("Range", "bytes=2-4")
	rec := httptest.NewRecorder()
	store.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "234", string(body))
}

func TestTempPreviewStore_ReleaseUnknownIsNoop(t *testing.T) {
	store := newTempStore(t)
	assert.NoError(t, store.Release("/previews/does-not-exist"))
	assert.NoError(t, store.Release(""))
}

func TestTempPreviewStore_Close(t *testing.T) {
	store := newTempStore(t)
	for n := 0; n < 3; n++ {
		_, err := store.Open("a.mp4", "video/mp4", strings.NewReader("x"))
		require.NoError(t, err)
	}
	require.Equal(t, 3, store.Live())

	require.NoError(t, store.Close())
	assert.Zero(t, store.Live())
	assert.Zero(t, dirEntries(t, store))
}

func TestController_NoPreviewLeaks(t *testing.T) {
	store := newTempStore(t)
	ctrl := NewController(Options{Notifier: &recordingNotifier{}, Previews: store})
	video := func(name string) FileHandle {
		return NewMemoryFile(name, "video/mp4", []byte("frames-"+name))
	}

	require.NoError(t, ctrl.SetReferenceVideo(video("one.mp4")))
	require.NoError(t, ctrl.SetReferenceVideo(video("two.mp4")))
	assert.Equal(t, 1, store.Live(), "replace releases the previous preview")

	ctrl.ClearReferenceVideo()
	assert.Zero(t, store.Live(), "clear releases the preview")

	require.NoError(t, ctrl.SetReferenceVideo(video("three.mp4")))
	ctrl.AddImages(context.Background(), []FileHandle{NewMemoryFile("a.png", "image/png", []byte{1})})
	ctrl.Reset()
	assert.Zero(t, store.Live(), "reset releases the preview")
	assert.Zero(t, dirEntries(t, store))
}
