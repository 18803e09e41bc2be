package azure

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBlobs struct {
	container   string
	name        string
	body        []byte
	contentType string
	deleteErr   error
}

func (f *fakeBlobs) UploadStream(_ context.Context, container, name string, body io.Reader, o *azblob.UploadStreamOptions) (azblob.UploadStreamResponse, error) {
	f.container, f.name = container, name
	f.body, _ = io.ReadAll(body)
	if o != nil && o.HTTPHeaders != nil && o.HTTPHeaders.BlobContentType != nil {
		f.contentType = *o.HTTPHeaders.BlobContentType
	}
	return azblob.UploadStreamResponse{}, nil
}

func (f *fakeBlobs) DeleteBlob(context.Context, string, string, *azblob.DeleteBlobOptions) (azblob.DeleteBlobResponse, error) {
	return azblob.DeleteBlobResponse{}, f.deleteErr
}

func TestStore_Upload(t *testing.T) {
	fake := &fakeBlobs{}
	s := &Store{client: fake, account: "clinic", container: "id-documents"}

	url, err := s.Upload(context.Background(), "documents/r1/id_x_id.png", strings.NewReader("img"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://clinic.blob.core.windows.net/id-documents/documents/r1/id_x_id.png", url)
	assert.Equal(t, "id-documents", fake.container)
	assert.Equal(t, "image/png", fake.contentType)
	assert.Equal(t, []byte("img"), fake.body)
	assert.Equal(t, "azure", s.Backend())
}

func TestStore_DeleteWrapsFailure(t *testing.T) {
	s := &Store{client: &fakeBlobs{deleteErr: errors.New("boom")}, container: "c"}
	assert.Error(t, s.Delete(context.Background(), "documents/r1/x"))

	s = &Store{client: &fakeBlobs{}, container: "c"}
	assert.NoError(t, s.Delete(context.Background(), "documents/r1/x"))
}
