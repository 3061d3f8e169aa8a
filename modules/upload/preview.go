package upload

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Preview is a live preview resource. It must be released when the owning
// video is replaced, cleared or the session is torn down.
type Preview struct {
	Token string
	URL   string
	Size  int64
}

// PreviewStore hands out releasable preview resources.
type PreviewStore interface {
	Open(name, mediaType string, r io.Reader) (Preview, error)
	Release(url string) error
}

type previewFile struct {
	path      string
	name      string
	mediaType string
	createdAt time.Time
}

// TempPreviewStore keeps previews as files in a directory and serves them
// under baseURL/<token>.
type TempPreviewStore struct {
	dir     string
	baseURL string

	mu    sync.Mutex
	files map[string]previewFile
}

// NewTempPreviewStore - dir 가 없으면 생성
func NewTempPreviewStore(dir, baseURL string) (*TempPreviewStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create preview dir: %w", err)
	}
	return &TempPreviewStore{
		dir:     dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		files:   make(map[string]previewFile),
	}, nil
}

func (s *TempPreviewStore) Open(name, mediaType string, r io.Reader) (Preview, error) {
	token := uuid.NewString()

	f, err := os.CreateTemp(s.dir, "preview-*"+filepath.Ext(name))
	if err != nil {
		return Preview{}, fmt.Errorf("failed to create preview file: %w", err)
	}

	n, err := io.Copy(f, r)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return Preview{}, fmt.Errorf("failed to write preview %s: %w", name, err)
	}

	s.mu.Lock()
	s.files[token] = previewFile{
		path:      f.Name(),
		name:      name,
		mediaType: mediaType,
		createdAt: time.Now(),
	}
	s.mu.Unlock()

	return Preview{Token: token, URL: s.baseURL + "/" + token, Size: n}, nil
}

// Release deletes the preview behind url. Unknown urls are ignored.
func (s *TempPreviewStore) Release(url string) error {
	token := path.Base(url)

	s.mu.Lock()
	pf, ok := s.files[token]
	delete(s.files, token)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	if err := os.Remove(pf.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove preview %s: %w", pf.name, err)
	}
	return nil
}

// Live - 아직 release 되지 않은 preview 개수
func (s *TempPreviewStore) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// Close releases every outstanding preview.
func (s *TempPreviewStore) Close() error {
	s.mu.Lock()
	files := s.files
	s.files = make(map[string]previewFile)
	s.mu.Unlock()

	for token, pf := range files {
		if err := os.Remove(pf.path); err != nil && !os.IsNotExist(err) {
			log.Printf("⚠️  [Preview] Failed to remove %s: %v", token, err)
		}
	}
	return nil
}

// ServeHTTP serves GET baseURL/<token> with range support.
func (s *TempPreviewStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := path.Base(r.URL.Path)

	s.mu.Lock()
	pf, ok := s.files[token]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	f, err := os.Open(pf.path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	if pf.mediaType != "" {
		w.Header().Set("Content-Type", pf.mediaType)
	}
	http.ServeContent(w, r, pf.name, pf.createdAt, f)
}
