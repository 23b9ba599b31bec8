package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"medilink-chat/internal/domain/identity"
	"medilink-chat/internal/storage"
	medilink_errors "medilink-chat/pkg/errors"

	"github.com/google/uuid"
)

// UploadService issues presigned URLs for message attachments (images,
// files, voice and video notes). The actual byte transfer happens between
// the client and object storage.
type UploadService struct {
	storage *storage.Client
}

type PresignInput struct {
	Uploader    identity.Ref
	FileName    string
	ContentType string
	FileSize    int64
}

type PresignResult struct {
	UploadURL string
	ObjectKey string
	Headers   map[string]string
}

const maxAttachmentBytes = 50 << 20

func NewUploadService(storage *storage.Client) *UploadService {
	return &UploadService{storage: storage}
}

func (s *UploadService) CreatePresignedUpload(ctx context.Context, input PresignInput) (PresignResult, error) {
	if s.storage == nil {
		return PresignResult{}, errors.New("attachment storage is not configured")
	}
	if input.FileName == "" || input.ContentType == "" || input.FileSize <= 0 {
		return PresignResult{}, medilink_errors.ErrInvalidInput
	}
	if input.FileSize > maxAttachmentBytes {
		return PresignResult{}, medilink_errors.ErrInvalidInput
	}

	key := buildObjectKey(input)
	uploadURL, headers, err := s.storage.PresignPut(ctx, key, input.ContentType, input.FileSize)
	if err != nil {
		return PresignResult{}, err
	}
	return PresignResult{UploadURL: uploadURL, ObjectKey: key, Headers: headers}, nil
}

func (s *UploadService) DownloadURL(ctx context.Context, objectKey string) (string, error) {
	if s.storage == nil {
		return "", errors.New("attachment storage is not configured")
	}
	if objectKey == "" {
		return "", medilink_errors.ErrInvalidInput
	}
	return s.storage.PresignGet(ctx, objectKey)
}

func buildObjectKey(input PresignInput) string {
	ext := strings.ToLower(path.Ext(input.FileName))
	return fmt.Sprintf("attachments/%s/%s/%s%s",
		input.Uploader.Key(),
		time.Now().UTC().Format("2006/01"),
		uuid.New().String(),
		ext)
}
