package db

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"

	app "github.com/etitcombe/tweeter"
	"github.com/etitcombe/tweeter/rand"
)

var imageExt = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
}

var imageRef = regexp.MustCompile(`^[a-z0-9_]{1,64}-[0-9a-f]{8}\.(jpg|png|gif)$`)

// ImageStore keeps avatar images as opaque blobs named
// <handle>-<hex>.<ext>.
type ImageStore struct {
	dir      string
	maxBytes int64
}

// NewImageStore creates and returns a new instance of an ImageStore,
// creating dir when missing.
func NewImageStore(dir string, maxBytes int64) (*ImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create images dir: %w", err)
	}
	return &ImageStore{dir: dir, maxBytes: maxBytes}, nil
}

// Save stores data as an avatar for handle and returns its reference. Empty
// data means no avatar and yields an empty reference.
func (s *ImageStore) Save(handle string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return "", app.Validation(fmt.Sprintf("Avatars must be %d KB or smaller.", s.maxBytes/1024))
	}
	ext, ok := imageExt[http.DetectContentType(data)]
	if !ok {
		return "", app.Validation("Avatars must be JPEG, PNG, or GIF images.")
	}
	if !handleStem.MatchString(handle) {
		return "", app.Validation("Invalid handle.")
	}
	suffix, err := rand.Hex(4)
	if err != nil {
		return "", &app.StorageError{Op: "generate image name", Err: err}
	}
	ref := handle + "-" + suffix + "." + ext
	if err := writeFileAtomic(filepath.Join(s.dir, ref), data, 0o644); err != nil {
		return "", &app.StorageError{Op: "write image " + ref, Err: err}
	}
	return ref, nil
}

// Path returns the file backing ref, or app.ErrNotFound for a reference this
// store could not have produced.
func (s *ImageStore) Path(ref string) (string, error) {
	if !imageRef.MatchString(ref) {
		return "", app.ErrNotFound
	}
	return filepath.Join(s.dir, ref), nil
}

// Remove deletes the blob behind ref. A missing blob is not an error.
func (s *ImageStore) Remove(ref string) error {
	path, err := s.Path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &app.StorageError{Op: "remove image " + ref, Err: err}
	}
	return nil
}
