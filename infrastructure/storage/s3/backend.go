// Package s3 provides the remote object store backend on Amazon S3 or
// any S3-compatible service.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/felixgeelhaar/narcache/domain/storage"
)

// API is the subset of the S3 client the backend uses. *s3.Client
// satisfies it; tests can substitute a fake.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Backend implements storage.Backend on an S3 bucket. Staged objects
// live under the "tmp/" prefix, promoted objects under "data/".
//
// Promote is a server-side copy from the staging key to the final key
// followed by a delete of the staging object. S3 has no rename, so
// this is NOT atomic: a crash between copy and delete leaves a
// residual staging object (a leak, recoverable by an out-of-band
// sweep), and there is a window in which both copies exist. The copy
// always precedes the delete so a failure can leave a duplicate but
// never a gap.
type Backend struct {
	client        API
	bucket        string
	stagingPrefix string
	dataPrefix    string
}

// Option configures the backend.
type Option func(*Backend)

// WithPrefixes overrides the staging and data key prefixes.
func WithPrefixes(staging, data string) Option {
	return func(b *Backend) {
		b.stagingPrefix = staging
		b.dataPrefix = data
	}
}

// New creates an S3 backend over an existing client.
func New(client API, bucket string, opts ...Option) (*Backend, error) {
	if client == nil {
		return nil, errors.New("s3 client is required")
	}
	if bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	b := &Backend{
		client:        client,
		bucket:        bucket,
		stagingPrefix: "tmp",
		dataPrefix:    "data",
	}
	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// ReadArtifact streams a promoted object from the bucket.
func (b *Backend) ReadArtifact(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := storage.ValidateKey(key); err != nil {
		return nil, err
	}

	output, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path.Join(b.dataPrefix, key)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("getting object %s: %w", key, err)
	}

	return output.Body, nil
}

// WriteStaged uploads contents to the staging key. The SDK consumes
// the stream fully; the object exists in the bucket only after a
// successful response.
func (b *Backend) WriteStaged(ctx context.Context, key string, contents io.Reader) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path.Join(b.stagingPrefix, key)),
		Body:   contents,
	})
	if err != nil {
		return fmt.Errorf("putting staged object %s: %w", key, err)
	}

	return nil
}

// Promote copies the staged object to the final key, then deletes the
// staging object. See the type comment for the atomicity caveats; the
// copy-then-delete order is load-bearing and must not be reversed.
func (b *Backend) Promote(ctx context.Context, key string) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}

	stagingKey := path.Join(b.stagingPrefix, key)
	finalKey := path.Join(b.dataPrefix, key)

	_, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.bucket),
		CopySource: aws.String(url.PathEscape(b.bucket + "/" + stagingKey)),
		Key:        aws.String(finalKey),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return fmt.Errorf("promoting %s: %w", key, storage.ErrNotFound)
		}
		return fmt.Errorf("copying %s to %s: %w", stagingKey, finalKey, err)
	}

	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(stagingKey),
	})
	if err != nil {
		// The promoted object is in place; the leftover staging object
		// is a leak, not a correctness problem.
		return fmt.Errorf("deleting staged object %s: %w", stagingKey, err)
	}

	return nil
}
