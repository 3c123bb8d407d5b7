//go:build integration

package integration

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ObjArchiver/internal/engine/archive"
	"ObjArchiver/internal/logger"
	"ObjArchiver/internal/miniostore"
	"ObjArchiver/internal/objstore"
	"ObjArchiver/internal/restore"
	"ObjArchiver/internal/s3"
)

// seedClient returns a plain minio-go client used to prepare the bucket.
func seedClient(t *testing.T, ctx context.Context) (*minio.Client, string) {
	t.Helper()
	endpoint, accessKey, secretKey, bucket := getMinIOEnv()
	u, err := url.Parse(endpoint)
	require.NoError(t, err)

	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: u.Scheme == "https",
	})
	require.NoError(t, err)

	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}
	return client, bucket
}

func stores(t *testing.T, ctx context.Context) map[string]objstore.Store {
	t.Helper()
	endpoint, accessKey, secretKey, _ := getMinIOEnv()

	s3Client, err := s3.New(ctx, s3.Options{
		Endpoint:  endpoint,
		Region:    "us-east-1",
		AccessKey: accessKey,
		SecretKey: secretKey,
		PathStyle: true,
	})
	require.NoError(t, err)

	minioClient, err := miniostore.New(miniostore.Options{
		Endpoint:  endpoint,
		Region:    "us-east-1",
		AccessKey: accessKey,
		SecretKey: secretKey,
		PathStyle: true,
	})
	require.NoError(t, err)

	return map[string]objstore.Store{"s3": s3Client, "minio": minioClient}
}

func TestMinIO_ArchiveAndVerify(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	seed, bucket := seedClient(t, ctx)
	run := time.Now().UTC().Format("20060102150405")
	srcPrefix := "integration/" + run + "/src/"

	objects := map[string][]byte{
		srcPrefix + "a.log":        []byte("alpha"),
		srcPrefix + "nested/b.log": bytes.Repeat([]byte("b"), 6*1024*1024),
		srcPrefix + "empty.log":    {},
	}
	for key, body := range objects {
		_, err := seed.PutObject(ctx, bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{})
		require.NoError(t, err)
	}

	log := logger.NewNop()
	retrier := objstore.NewRetrier(objstore.DefaultRetryPolicy(), log)

	for name, store := range stores(t, ctx) {
		for _, alg := range []archive.Algorithm{archive.AlgorithmNone, archive.AlgorithmZstd} {
			t.Run(fmt.Sprintf("%s/%s", name, alg), func(t *testing.T) {
				compression := archive.CompressionConfig{Algorithm: alg, Level: archive.LevelFastest}
				summary, err := archive.New(store, retrier, log, nil).Run(ctx, archive.Options{
					SourceBucket: bucket,
					SourcePrefix: srcPrefix,
					DestBucket:   bucket,
					DestPrefix:   fmt.Sprintf("integration/%s/dst-%s-%s", run, name, alg),
					PartSize:     objstore.MinPartSize,
					MaxParts:     10000,
					Concurrency:  2,
					Compression:  compression,
					Preflight:    true,
				})
				require.NoError(t, err)
				assert.Equal(t, int64(3), summary.ObjectsArchived)

				res, err := restore.Verify(ctx, store, bucket, summary.Key)
				require.NoError(t, err)
				require.Len(t, res.Entries, 3)

				var total int64
				for _, e := range res.Entries {
					total += e.Size
				}
				assert.Equal(t, int64(5+6*1024*1024), total)

				require.NoError(t, seed.RemoveObject(ctx, bucket, summary.Key, minio.RemoveObjectOptions{}))
			})
		}
	}

	for key := range objects {
		_ = seed.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
	}
}
