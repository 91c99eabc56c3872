// Package minio fetches images from MinIO and other S3-compatible object
// storage via s3:// URIs.
//
// # Basic Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fetcher := miniofetch.NewFetcher(client)
//	data, err := fetcher.Get(ctx, "s3://photos/vacation/beach.jpg")
//
// Works with any S3-compatible storage (Ceph, Garage, SeaweedFS) without
// AWS dependencies.
package minio
