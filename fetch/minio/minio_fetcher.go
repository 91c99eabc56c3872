package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/pixelsift/pixelsift/fetch"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// Fetcher implements fetch.Fetcher for s3:// URIs backed by a MinIO client.
type Fetcher struct {
	client *minio.Client
}

var _ fetch.Fetcher = (*Fetcher)(nil)

// NewFetcher creates a new object-store fetcher.
func NewFetcher(client *minio.Client) *Fetcher {
	return &Fetcher{client: client}
}

// Get loads the object bytes behind an s3://bucket/key URI.
func (f *Fetcher) Get(ctx context.Context, uri string) ([]byte, error) {
	bucket, key, err := splitURI(uri)
	if err != nil {
		return nil, err
	}

	obj, err := f.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
		}
		return nil, err
	}
	return data, nil
}

// Metadata returns the original name, path, size and modification time of
// the object.
func (f *Fetcher) Metadata(ctx context.Context, uri string) (fetch.Metadata, error) {
	bucket, key, err := splitURI(uri)
	if err != nil {
		return fetch.Metadata{}, err
	}

	info, err := f.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return fetch.Metadata{}, fmt.Errorf("%w: %s", ErrNotFound, uri)
		}
		return fetch.Metadata{}, err
	}

	dir, name := path.Split(key)
	return fetch.Metadata{
		OriginalFileName:   name,
		OriginalPath:       "s3://" + bucket + "/" + strings.TrimSuffix(dir, "/"),
		OriginalFileSize:   fmt.Sprintf("%dK", info.Size/1024),
		OriginalAccessTime: info.LastModified.UTC().Format(time.RFC3339)[:19],
	}, nil
}

// Scan enumerates all object URIs under an s3://bucket/prefix location.
func (f *Fetcher) Scan(ctx context.Context, uri string) ([]string, error) {
	bucket, prefix, err := splitURI(uri)
	if err != nil {
		return nil, err
	}

	var uris []string
	for obj := range f.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		uris = append(uris, "s3://"+bucket+"/"+obj.Key)
	}
	return uris, nil
}

func splitURI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("%w: %s", fetch.ErrUnknownProtocol, uri)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}
