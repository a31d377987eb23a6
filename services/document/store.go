package docsvc

import (
	"context"
	"io"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/eminingcampus/campus/core/learning"
)

const certificatesDir = "certificates"

var errInvalidRef = errors.New("invalid document ref")

// LocalStore keeps documents under a media root. Refs are paths relative to the root.
type LocalStore struct {
	root string
}

var _ learning.DocumentStore = (*LocalStore)(nil)

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) Save(_ context.Context, name string, content []byte) (string, error) {
	name = filepath.Base(name)
	dir := filepath.Join(s.root, certificatesDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating media dir")
	}

	tmp, err := ioutil.TempFile(dir, name+".*.tmp")
	if err != nil {
		return "", errors.Wrap(err, "creating temp file")
	}
	if _, err = tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", errors.Wrap(err, "writing document")
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", errors.Wrap(err, "closing document")
	}
	if err = os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmp.Name())
		return "", errors.Wrap(err, "moving document")
	}
	return path.Join(certificatesDir, name), nil
}

func (s *LocalStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	clean := path.Clean("/" + ref)[1:]
	if clean == "" || clean != ref || strings.HasPrefix(clean, "..") {
		return nil, errInvalidRef
	}
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(clean)))
	if err != nil {
		return nil, errors.Wrap(err, "opening document")
	}
	return f, nil
}
