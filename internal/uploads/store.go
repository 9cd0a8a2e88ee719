// Package uploads stores files accepted by the upload endpoints on disk and
// records each one in the repository.
package uploads

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/wa-rotator/backend/internal/session"
)

const (
	TypeMessage     = "message"
	TypeCredentials = "creds"
)

var (
	ErrTooLarge    = errors.New("file exceeds upload limit")
	ErrEmptyFile   = errors.New("file is empty")
	ErrNotText     = errors.New("file is not plain text")
	ErrInvalidJSON = errors.New("credentials are not valid JSON")
	ErrOutsideDir  = errors.New("path is outside the upload directory")
)

// Recorder persists upload metadata.
type Recorder interface {
	SaveUpload(ctx context.Context, u *session.Upload) error
}

type Store struct {
	dir      string
	credsDir string
	maxBytes int64
	rec      Recorder
}

func New(dir, credsDir string, maxBytes int64, rec Recorder) *Store {
	return &Store{dir: dir, credsDir: credsDir, maxBytes: maxBytes, rec: rec}
}

// SaveMessageFile stores a plain-text message list under a generated name.
func (s *Store) SaveMessageFile(ctx context.Context, originalName string, r io.Reader) (*session.Upload, error) {
	data, err := s.readLimited(r)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
		return nil, ErrNotText
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" || len(ext) > 8 {
		ext = ".txt"
	}
	name := uuid.NewString() + ext
	path, err := writeAtomic(s.dir, name, data, 0o644)
	if err != nil {
		return nil, err
	}
	return s.record(ctx, originalName, path, TypeMessage, int64(len(data)))
}

// SaveCredentials stores a credentials file as <credsDir>/<sessionID>.json,
// replacing any previous file for that session.
func (s *Store) SaveCredentials(ctx context.Context, sessionID, originalName string, r io.Reader) (*session.Upload, error) {
	if err := session.ValidateID(sessionID); err != nil {
		return nil, err
	}
	data, err := s.readLimited(r)
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, ErrInvalidJSON
	}
	path, err := writeAtomic(s.credsDir, sessionID+".json", data, 0o600)
	if err != nil {
		return nil, err
	}
	return s.record(ctx, originalName, path, TypeCredentials, int64(len(data)))
}

// ResolveMessagePath maps a path returned by SaveMessageFile, or a bare file
// name, to a file inside the upload directory.
func (s *Store) ResolveMessagePath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	root, err := filepath.Abs(s.dir)
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve upload dir")
	}
	candidate := p
	if !filepath.IsAbs(candidate) && filepath.Dir(candidate) == "." {
		candidate = filepath.Join(root, candidate)
	}
	abs, err := filepath.Abs(candidate)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve %s", p)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || filepath.Dir(rel) != "." {
		return "", errors.Wrapf(ErrOutsideDir, "%s", p)
	}
	return abs, nil
}

func (s *Store) readLimited(r io.Reader) ([]byte, error) {
	limit := s.maxBytes
	if limit <= 0 {
		limit = 5 << 20
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}
	return data, nil
}

func (s *Store) record(ctx context.Context, originalName, path, fileType string, size int64) (*session.Upload, error) {
	u := &session.Upload{
		OriginalName: originalName,
		StoragePath:  path,
		FileType:     fileType,
		FileSize:     size,
	}
	if s.rec != nil {
		if err := s.rec.SaveUpload(ctx, u); err != nil {
			return nil, errors.Wrap(err, "failed to record upload")
		}
	}
	return u, nil
}

// writeAtomic writes data to dir/name through a temp file and rename, so a
// reader never sees a partial file.
func writeAtomic(dir, name string, data []byte, perm os.FileMode) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create upload dir")
	}

	tmp, err := os.CreateTemp(dir, ".upload-*.tmp")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temp file")
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", errors.Wrap(err, "failed to write temp file")
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, "failed to close temp file")
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return "", errors.Wrap(err, "failed to set file mode")
	}
	final := filepath.Join(dir, name)
	if err := os.Rename(tmpPath, final); err != nil {
		return "", errors.Wrap(err, "failed to move upload into place")
	}
	committed = true
	return final, nil
}
