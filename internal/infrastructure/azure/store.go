package azure

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/patient-idv/internal/infrastructure/logger"
)

type blobAPI interface {
	UploadStream(ctx context.Context, containerName, blobName string, body io.Reader, o *azblob.UploadStreamOptions) (azblob.UploadStreamResponse, error)
	DeleteBlob(ctx context.Context, containerName, blobName string, o *azblob.DeleteBlobOptions) (azblob.DeleteBlobResponse, error)
}

// Store keeps identity documents in one Azure Blob Storage container.
type Store struct {
	client    blobAPI
	account   string
	container string
}

// NewStore authenticates with a shared key against the account's blob endpoint.
func NewStore(account, key, container string) (*Store, error) {
	cred, err := azblob.NewSharedKeyCredential(account, key)
	if err != nil {
		logger.Error("azure credential rejected", logger.LoggerOptions{Key: "error", Data: err.Error()})
		return nil, fmt.Errorf("azure shared key: %w", err)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(fmt.Sprintf("https://%s.blob.core.windows.net/", account), cred, nil)
	if err != nil {
		logger.Error("azure blob client failed", logger.LoggerOptions{Key: "error", Data: err.Error()})
		return nil, fmt.Errorf("azure blob client: %w", err)
	}
	return &Store{client: client, account: account, container: container}, nil
}

// Backend names the storage driver recorded on stored documents.
func (s *Store) Backend() string { return "azure" }

// Upload streams a document into the container under key and returns its URL.
func (s *Store) Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	_, err := s.client.UploadStream(ctx, s.container, key, r, &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		logger.Error("azure upload failed",
			logger.LoggerOptions{Key: "object", Data: key},
			logger.LoggerOptions{Key: "error", Data: err.Error()})
		return "", fmt.Errorf("azure upload blob: %w", err)
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s", s.account, s.container, key), nil
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteBlob(ctx, s.container, key, nil)
	if err == nil || bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil
	}
	return fmt.Errorf("azure delete blob: %w", err)
}
