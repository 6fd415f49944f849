package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/commonroom/commonroom_backend/utils"
)

const signedURLTTL = 15 * time.Minute

// UploadTicket is what a client needs to upload one media object: a
// pre-signed PUT URL and the public URL the object will be served from.
// Clients put the public URL into the post's media refs once the upload
// finished.
type UploadTicket struct {
	UploadURL string `json:"uploadUrl"`
	PublicURL string `json:"publicUrl"`
	ObjectKey string `json:"objectKey"`
}

// StorageService hands out upload destinations for post media. With a
// Cloud Storage bucket configured it signs V4 PUT URLs; without one it
// falls back to accepting the bytes directly and writing them under the
// local uploads directory.
type StorageService struct {
	client *storage.Client
	bucket string
}

// NewStorageService creates a storage service. client may be nil, which
// forces the local fallback.
func NewStorageService(client *storage.Client) *StorageService {
	return &StorageService{
		client: client,
		bucket: os.Getenv("STORAGE_BUCKET"),
	}
}

// SignedUploadsEnabled reports whether direct-to-bucket uploads are
// available.
func (s *StorageService) SignedUploadsEnabled() bool {
	return s.client != nil && s.bucket != ""
}

// objectKey builds a collision-free object name that keeps the original
// extension for content-type sniffing.
func objectKey(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("posts/%s%s", uuid.New().String(), ext)
}

// CreateUploadTicket validates the file type and returns a signed PUT URL
// for the object.
func (s *StorageService) CreateUploadTicket(ctx context.Context, filename, mediaType, contentType string) (*UploadTicket, error) {
	if err := utils.ValidateFileType(filename, mediaType); err != nil {
		return nil, err
	}
	if !s.SignedUploadsEnabled() {
		return nil, fmt.Errorf("signed uploads are not configured")
	}

	key := objectKey(filename)
	uploadURL, err := s.client.Bucket(s.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      "PUT",
		Expires:     time.Now().Add(signedURLTTL),
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign upload URL: %w", err)
	}

	return &UploadTicket{
		UploadURL: uploadURL,
		PublicURL: fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key),
		ObjectKey: key,
	}, nil
}

// StoreLocal writes media bytes under the local uploads directory and
// returns the served URL. Used when no bucket is configured; video
// thumbnails are generated out of band by the upload controller.
func (s *StorageService) StoreLocal(fileData []byte, filename, mediaType string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	name := fmt.Sprintf("%s%s", uuid.New().String(), ext)
	return utils.UploadFileToPath(fileData, name, mediaType, "posts")
}
