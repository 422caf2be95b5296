package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
)

const (
	s3Prefix      = "cache/"
	metaCreatedAt = "Created-At"
	metaTTL       = "Ttl-Seconds"
)

// S3Store keeps one object per key in a bucket. Freshness is tracked in user
// metadata since S3 lifecycle rules only work at day granularity.
type S3Store struct {
	client *minio.Client
	bucket string

	now func() time.Time
}

var _ Store = (*S3Store)(nil)

func NewS3Store(client *minio.Client, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket, now: time.Now}
}

func (s *S3Store) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	name := s3Prefix + string(key)
	info, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, false, nil
		}
		return nil, false, wrapErr("s3", "get", err)
	}

	entry, err := entryFromMetadata(key, info.UserMetadata)
	if err != nil {
		return nil, false, wrapErr("s3", "get", err)
	}
	if entry.Expired(s.now()) {
		// Only a versioned bucket lets the delete target exactly the stale
		// object; otherwise EvictExpired reclaims it.
		if info.VersionID != "" {
			opts := minio.RemoveObjectOptions{VersionID: info.VersionID}
			if err := s.client.RemoveObject(ctx, s.bucket, name, opts); err != nil {
				return nil, false, wrapErr("s3", "get", err)
			}
		}
		return nil, false, nil
	}

	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, false, wrapErr("s3", "get", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, false, wrapErr("s3", "get", err)
	}
	return data, true, nil
}

func (s *S3Store) Put(ctx context.Context, key Key, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	_, err := s.client.PutObject(ctx, s.bucket, s3Prefix+string(key),
		bytes.NewReader(value), int64(len(value)),
		minio.PutObjectOptions{
			ContentType: "application/octet-stream",
			UserMetadata: map[string]string{
				metaCreatedAt: s.now().UTC().Format(time.RFC3339Nano),
				metaTTL:       strconv.FormatInt(ttlSeconds(ttl), 10),
			},
		})
	if err != nil {
		return wrapErr("s3", "put", err)
	}
	return nil
}

func (s *S3Store) EvictExpired(ctx context.Context) (int, error) {
	now := s.now()
	var evicted int
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:       s3Prefix,
		Recursive:    true,
		WithMetadata: true,
	}) {
		if obj.Err != nil {
			return evicted, wrapErr("s3", "sweep", obj.Err)
		}
		entry, err := entryFromMetadata(Key(obj.Key[len(s3Prefix):]), obj.UserMetadata)
		if err != nil || !entry.Expired(now) {
			continue
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err == nil {
			evicted++
		}
	}
	return evicted, nil
}

func (s *S3Store) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err == nil && !ok {
		err = fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return wrapErr("s3", "ping", err)
}

func (s *S3Store) Close() error { return nil }

// entryFromMetadata rebuilds freshness data. Listing returns metadata keys
// with an X-Amz-Meta- prefix while StatObject strips it, so both are accepted.
func entryFromMetadata(key Key, meta map[string]string) (*CacheEntry, error) {
	lookup := func(name string) string {
		if v, ok := meta[name]; ok {
			return v
		}
		return meta["X-Amz-Meta-"+name]
	}

	createdAt, err := time.Parse(time.RFC3339Nano, lookup(metaCreatedAt))
	if err != nil {
		return nil, fmt.Errorf("object %s: bad created-at: %w", key, err)
	}
	ttl, err := strconv.ParseInt(lookup(metaTTL), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("object %s: bad ttl: %w", key, err)
	}
	return &CacheEntry{Key: key, CreatedAt: createdAt, TTLSeconds: ttl}, nil
}
