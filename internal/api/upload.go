package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ashureev/virtual-companion/internal/domain"
	"github.com/ashureev/virtual-companion/internal/gateway"
	"github.com/google/uuid"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 1 << 20

// imageTypes maps accepted extensions to the content type sniffed from the
// file header.
var imageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

// UploadStore keeps chat images on disk under uuid names.
type UploadStore struct {
	dir string
}

// NewUploadStore creates dir if needed.
func NewUploadStore(dir string) (*UploadStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &UploadStore{dir: dir}, nil
}

// Save writes data under a fresh name and returns that name.
func (s *UploadStore) Save(data []byte, ext string) (string, error) {
	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o640); err != nil {
		return "", &domain.IOError{Op: "store upload", Err: err}
	}
	return name, nil
}

// Remove deletes a stored upload. Missing files are not an error.
func (s *UploadStore) Remove(name string) error {
	err := os.Remove(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// URL is the public path of a stored upload.
func (s *UploadStore) URL(name string) string {
	return "/uploads/" + name
}

// Handler serves stored uploads. Mount it with the /uploads/ prefix stripped.
func (s *UploadStore) Handler() http.Handler {
	return http.FileServer(http.Dir(s.dir))
}

// readImage pulls the "image" part out of a parsed multipart form and checks
// its size, extension and sniffed content type.
func (h *Handler) readImage(r *http.Request) (*gateway.Image, string, error) {
	file, header, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, "", &domain.ValidationError{Field: "image", Message: "vui lòng chọn một hình ảnh"}
		}
		return nil, "", &domain.ValidationError{Field: "image", Message: "không đọc được hình ảnh"}
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			h.logger.Debug("Failed to close upload part", "error", closeErr)
		}
	}()

	if header.Size > h.opts.MaxUploadBytes {
		return nil, "", tooLarge(h.opts.MaxUploadBytes)
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	want, ok := imageTypes[ext]
	if !ok {
		return nil, "", &domain.ValidationError{Field: "image", Message: "chỉ chấp nhận ảnh jpg, jpeg, png hoặc gif"}
	}

	data, err := io.ReadAll(io.LimitReader(file, h.opts.MaxUploadBytes+1))
	if err != nil {
		return nil, "", &domain.IOError{Op: "read upload", Err: err}
	}
	if int64(len(data)) > h.opts.MaxUploadBytes {
		return nil, "", tooLarge(h.opts.MaxUploadBytes)
	}

	sniffed := http.DetectContentType(data)
	if !strings.HasPrefix(sniffed, want) {
		return nil, "", &domain.ValidationError{Field: "image", Message: "nội dung tệp không phải là hình ảnh hợp lệ"}
	}

	return &gateway.Image{Data: data, MIMEType: want}, ext, nil
}

func tooLarge(limit int64) error {
	return &domain.ValidationError{
		Field:   "image",
		Message: fmt.Sprintf("hình ảnh vượt quá giới hạn %dMB", limit>>20),
	}
}
