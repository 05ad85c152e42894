package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiskUploader writes attachments into a directory served statically under
// PublicBaseURL.
type DiskUploader struct {
	dir       string
	publicURL string
}

func NewDiskUploader(dir, publicBaseURL string) (*DiskUploader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskUploader{dir: dir, publicURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

func (u *DiskUploader) Upload(ctx context.Context, name, _ string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	object := objectName(name)
	tmp, err := os.CreateTemp(u.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(u.dir, object)); err != nil {
		return "", fmt.Errorf("publish upload: %w", err)
	}
	return u.publicURL + "/" + object, nil
}
