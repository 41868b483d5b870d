// Package azureblob implements objectstore.Store over Azure Blob Storage,
// the teacher's (github.com/Azure/azure-storage-blob-go) only true
// storage-SDK dependency. Azure block blobs expose exactly the
// ETag/If-Match conditional-write semantics spec.md §6 requires of the
// object store, via azblob.BlobAccessConditions.IfMatch.
package azureblob

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"net/url"
	"strings"

	"github.com/Azure/azure-storage-blob-go/azblob"

	"berith-chain/minefleet/objectstore"
)

// Store adapts one Azure Blob container to objectstore.Store. The
// container name is the account-qualified bucket naming scheme spec.md
// §9's open question resolves in favor of
// ("<prefix>-<account>-<region>" — see DESIGN.md).
type Store struct {
	container azblob.ContainerURL
	bucket    string
}

// New builds a Store for the container named bucket in accountName's
// blob endpoint, authenticated with the given shared-key credential.
func New(accountName, accountKey, bucket string) (*Store, error) {
	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("azureblob: credential: %w", err)
	}
	pipeline := azblob.NewPipeline(cred, azblob.PipelineOptions{})
	u, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net/%s", accountName, bucket))
	if err != nil {
		return nil, fmt.Errorf("azureblob: container url: %w", err)
	}
	return &Store{container: azblob.NewContainerURL(*u, pipeline), bucket: bucket}, nil
}

func (s *Store) blob(key string) azblob.BlockBlobURL {
	return s.container.NewBlockBlobURL(key)
}

// Get implements objectstore.Store.
func (s *Store) Get(ctx context.Context, key string) (objectstore.Object, error) {
	resp, err := s.blob(key).Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		if isNotFound(err) {
			return objectstore.Object{}, objectstore.ErrNotFound
		}
		return objectstore.Object{}, fmt.Errorf("azureblob: get %s: %w", key, err)
	}
	body := resp.Body(azblob.RetryReaderOptions{})
	defer body.Close()
	data, err := ioutil.ReadAll(body)
	if err != nil {
		return objectstore.Object{}, fmt.Errorf("azureblob: read %s: %w", key, err)
	}
	return objectstore.Object{Body: data, ETag: string(resp.ETag())}, nil
}

// Head implements objectstore.Store.
func (s *Store) Head(ctx context.Context, key string) (objectstore.ListEntry, error) {
	resp, err := s.blob(key).GetProperties(ctx, azblob.BlobAccessConditions{}, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		if isNotFound(err) {
			return objectstore.ListEntry{}, objectstore.ErrNotFound
		}
		return objectstore.ListEntry{}, fmt.Errorf("azureblob: head %s: %w", key, err)
	}
	return objectstore.ListEntry{Key: key, ETag: string(resp.ETag()), Size: resp.ContentLength()}, nil
}

// Put implements objectstore.Store's CAS contract: an empty ifMatch is a
// blind write (azblob.ETagNone), a non-empty one maps to IfMatch.
func (s *Store) Put(ctx context.Context, key string, body []byte, ifMatch string) (string, error) {
	cond := azblob.BlobAccessConditions{}
	if ifMatch != "" {
		cond.ModifiedAccessConditions.IfMatch = azblob.ETag(ifMatch)
	} else {
		// First-write-wins is not required here; blind writes overwrite.
	}
	resp, err := s.blob(key).Upload(ctx, bytes.NewReader(body), azblob.BlobHTTPHeaders{ContentType: "application/json"},
		azblob.Metadata{}, cond, azblob.DefaultAccessTier, nil, azblob.ClientProvidedKeyOptions{}, azblob.ImmutabilityPolicyOptions{})
	if err != nil {
		if isPreconditionFailed(err) {
			return "", objectstore.ErrPreconditionFailed
		}
		return "", fmt.Errorf("azureblob: put %s: %w", key, err)
	}
	return string(resp.ETag()), nil
}

// List implements objectstore.Store over a container-wide paged listing.
func (s *Store) List(ctx context.Context, prefix string) ([]objectstore.ListEntry, error) {
	var out []objectstore.ListEntry
	for marker := (azblob.Marker{}); marker.NotDone(); {
		resp, err := s.container.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{Prefix: prefix})
		if err != nil {
			return nil, fmt.Errorf("azureblob: list %s: %w", prefix, err)
		}
		for _, b := range resp.Segment.BlobItems {
			out = append(out, objectstore.ListEntry{
				Key:  b.Name,
				ETag: string(b.Properties.Etag),
				Size: *b.Properties.ContentLength,
			})
		}
		marker = resp.NextMarker
	}
	return out, nil
}

// Delete implements objectstore.Store.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.blob(key).Delete(ctx, azblob.DeleteSnapshotsOptionNone, azblob.BlobAccessConditions{})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("azureblob: delete %s: %w", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	if sErr, ok := err.(azblob.StorageError); ok {
		return sErr.ServiceCode() == azblob.ServiceCodeBlobNotFound || sErr.Response().StatusCode == 404
	}
	return strings.Contains(err.Error(), "BlobNotFound")
}

func isPreconditionFailed(err error) bool {
	if sErr, ok := err.(azblob.StorageError); ok {
		return sErr.Response().StatusCode == 412 || sErr.ServiceCode() == azblob.ServiceCodeConditionNotMet
	}
	return strings.Contains(err.Error(), "ConditionNotMet") || strings.Contains(err.Error(), "412")
}
