package upload

import (
	"bytes"
	"io"
	"mime/multipart"
	"strings"
)

// FileHandle is an opaque reference to a file picked by the user.
type FileHandle interface {
	Name() string
	Size() int64
	MediaType() string
	Open() (io.ReadCloser, error)
}

// MemoryFile - FileHandle backed by a byte slice
type MemoryFile struct {
	name      string
	mediaType string
	data      []byte
}

func NewMemoryFile(name, mediaType string, data []byte) *MemoryFile {
	return &MemoryFile{name: name, mediaType: mediaType, data: data}
}

func (f *MemoryFile) Name() string      { return f.name }
func (f *MemoryFile) Size() int64       { return int64(len(f.data)) }
func (f *MemoryFile) MediaType() string { return f.mediaType }

func (f *MemoryFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

type multipartFile struct {
	header *multipart.FileHeader
}

func (f multipartFile) Name() string      { return f.header.Filename }
func (f multipartFile) Size() int64       { return f.header.Size }
func (f multipartFile) MediaType() string { return f.header.Header.Get("Content-Type") }

func (f multipartFile) Open() (io.ReadCloser, error) {
	return f.header.Open()
}

// FromMultipart wraps uploaded form files.
func FromMultipart(headers []*multipart.FileHeader) []FileHandle {
	files := make([]FileHandle, 0, len(headers))
	for _, h := range headers {
		files = append(files, multipartFile{header: h})
	}
	return files
}

// FilterMediaType keeps files whose declared type starts with prefix ("image/", "video/").
func FilterMediaType(files []FileHandle, prefix string) []FileHandle {
	kept := make([]FileHandle, 0, len(files))
	for _, f := range files {
		if strings.HasPrefix(f.MediaType(), prefix) {
			kept = append(kept, f)
		}
	}
	return kept
}
