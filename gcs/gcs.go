package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/apex/log"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"civicspot/apperr"
	"civicspot/models"
)

const DefaultMaxImageBytes = 5 << 20

// allowed maps accepted content types to the extension used for the object.
var allowed = map[string]string{
	"image/jpeg": "jpeg",
	"image/jpg":  "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

var allowedExt = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

type Config struct {
	Bucket          string
	Folder          string
	CredentialsFile string
	MaxBytes        int64
}

// Storage keeps report images in a Google Cloud Storage bucket.
type Storage struct {
	client   *storage.Client
	bucket   string
	folder   string
	maxBytes int64
}

// New connects to GCS and checks the bucket is reachable.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}

	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("gcs bucket %s: %w", cfg.Bucket, err)
	}
	log.WithField("bucket", cfg.Bucket).Info("connected to Google Cloud Storage")

	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return &Storage{
		client:   client,
		bucket:   cfg.Bucket,
		folder:   strings.Trim(cfg.Folder, "/"),
		maxBytes: maxBytes,
	}, nil
}

func (s *Storage) Close() {
	if s != nil && s.client != nil {
		s.client.Close()
	}
}

// Upload stores one image and returns its public URL and object name.
func (s *Storage) Upload(ctx context.Context, file models.Upload) (models.Image, error) {
	ext, err := CheckUpload(file, s.maxBytes)
	if err != nil {
		return models.Image{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	name := ObjectName(s.folder, ext, time.Now())
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType(file.ContentType)

	n, err := io.Copy(w, io.LimitReader(file.Reader, s.maxBytes+1))
	if err != nil {
		cancel()
		_ = w.Close()
		return models.Image{}, fmt.Errorf("copy %s to gcs: %w", file.Filename, err)
	}
	if n > s.maxBytes {
		// Cancelling before Close aborts the upload.
		cancel()
		_ = w.Close()
		return models.Image{}, tooLarge(s.maxBytes)
	}
	if err := w.Close(); err != nil {
		return models.Image{}, fmt.Errorf("finish gcs upload: %w", err)
	}

	url := fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, name)
	log.WithFields(log.Fields{"object": name, "bytes": n}).Debug("image uploaded")
	return models.Image{URL: url, MediaID: name}, nil
}

// Delete removes the object. An object that is already gone counts as
// deleted.
func (s *Storage) Delete(ctx context.Context, mediaID string) error {
	err := s.client.Bucket(s.bucket).Object(mediaID).Delete(ctx)
	if err == nil || errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return fmt.Errorf("delete %s: %w", mediaID, err)
}

// CheckUpload validates type and declared size and returns the object
// extension to use.
func CheckUpload(file models.Upload, maxBytes int64) (string, error) {
	ext, ok := allowed[contentType(file.ContentType)]
	if !ok || !allowedExt[strings.ToLower(path.Ext(file.Filename))] {
		return "", apperr.ValidationFields(
			"Only image files are allowed (jpeg, jpg, png, gif, webp)",
			map[string]string{"images": "unsupported file type"},
		)
	}
	if file.Size > maxBytes {
		return "", tooLarge(maxBytes)
	}
	return ext, nil
}

// ObjectName builds a unique object name under folder.
func ObjectName(folder, ext string, now time.Time) string {
	name := fmt.Sprintf("%s_%d.%s", uuid.NewString(), now.UnixNano(), ext)
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

func contentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

func tooLarge(maxBytes int64) error {
	return apperr.ValidationFields(
		fmt.Sprintf("File too large. Maximum size is %dMB", maxBytes>>20),
		map[string]string{"images": "file too large"},
	)
}
