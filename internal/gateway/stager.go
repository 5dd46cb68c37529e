package gateway

import (
	"alcyxob/fight-gateway/internal/domain"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/spf13/afero"
)

// Stager allocates the resource backing a StagedUpload. Implementations must
// not leave anything allocated when they return an error, including when ctx
// is cancelled mid-copy.
type Stager interface {
	Stage(ctx context.Context, id string, c domain.UploadCandidate) (Resource, error)
}

// FSStager stages uploads as temp files on an afero filesystem: afero.NewOsFs
// for disk, afero.NewMemMapFs for memory.
type FSStager struct {
	fs      afero.Fs
	dir     string
	backend string
}

// NewFSStager creates dir if needed. An empty dir means os.TempDir().
func NewFSStager(fs afero.Fs, dir, backend string) (*FSStager, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := fs.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create staging dir %q: %w", dir, err)
	}
	return &FSStager{fs: fs, dir: dir, backend: backend}, nil
}

func (s *FSStager) Stage(ctx context.Context, id string, c domain.UploadCandidate) (res Resource, err error) {
	f, err := afero.TempFile(s.fs, s.dir, "upload-"+id+"-*"+SafeSuffix(c.Name))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	name := f.Name()
	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			_ = f.Close()
		}
		_ = s.fs.Remove(name)
	}()

	if _, err = io.Copy(f, newSizedReader(ctx, c.Content, c.Size)); err != nil {
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	closed = true
	if err = f.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	return &fileResource{fs: s.fs, path: name, backend: s.backend}, nil
}

type fileResource struct {
	fs      afero.Fs
	path    string
	backend string
}

func (r *fileResource) Backend() string  { return r.backend }
func (r *fileResource) Location() string { return r.path }

func (r *fileResource) Open(_ context.Context) (io.ReadCloser, error) {
	return r.fs.Open(r.path)
}

func (r *fileResource) Release(_ context.Context) error {
	if err := r.fs.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

var suffixPattern = regexp.MustCompile(`^[a-z0-9]{1,8}$`)

// SafeSuffix returns ".ext" for short alphanumeric extensions and "" otherwise,
// so user-supplied names never reach the filesystem or an object key.
func SafeSuffix(name string) string {
	ext := Extension(name)
	if !suffixPattern.MatchString(ext) {
		return ""
	}
	return "." + ext
}

// randomAccess is satisfied by multipart.File, *os.File, afero.File and *bytes.Reader.
type randomAccess interface {
	io.ReaderAt
	io.Seeker
}

// exactBody returns a reader over exactly size bytes of r. When r supports
// random access the length is checked up front and the result is seekable,
// which the S3 client needs to sign a payload sent over plain HTTP. Other
// readers are wrapped in a sizedReader.
func exactBody(ctx context.Context, r io.Reader, size int64) (io.Reader, error) {
	ra, ok := r.(randomAccess)
	if !ok {
		return newSizedReader(ctx, r, size), nil
	}
	start, err := ra.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	end, err := ra.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if _, err := ra.Seek(start, io.SeekStart); err != nil {
		return nil, err
	}
	switch available := end - start; {
	case available < size:
		return nil, io.ErrUnexpectedEOF
	case available > size:
		return nil, ErrSizeMismatch
	}
	return io.NewSectionReader(ra, start, size), nil
}

// sizedReader yields exactly size bytes from r. A short source ends in
// io.ErrUnexpectedEOF, a longer one in ErrSizeMismatch, and every read checks ctx.
type sizedReader struct {
	ctx       context.Context
	r         io.Reader
	remaining int64
}

func newSizedReader(ctx context.Context, r io.Reader, size int64) *sizedReader {
	return &sizedReader{ctx: ctx, r: r, remaining: size}
}

func (s *sizedReader) Read(p []byte) (int, error) {
	if err := s.ctx.Err(); err != nil {
		return 0, err
	}
	if s.remaining <= 0 {
		var extra [1]byte
		n, err := io.ReadAtLeast(s.r, extra[:], 1)
		if n > 0 {
			return 0, ErrSizeMismatch
		}
		if errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		return 0, err
	}
	if int64(len(p)) > s.remaining {
		p = p[:s.remaining]
	}
	n, err := s.r.Read(p)
	s.remaining -= int64(n)
	if errors.Is(err, io.EOF) {
		if s.remaining > 0 {
			return n, io.ErrUnexpectedEOF
		}
		return n, nil
	}
	return n, err
}
