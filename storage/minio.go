package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"WaveFM/config"
	"WaveFM/logger"
)

var (
	minioClient *minio.Client
	audioBucket string
)

// InitMinio connects to the object store and ensures the audio bucket
// exists. The bucket holds cached audio variants keyed by source ID so
// the relay can serve a track the upstream refuses to hand out again.
func InitMinio(cfg *config.Config) error {
	logger.Info("Connecting to MinIO",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket))

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("failed to create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", cfg.MinioBucket, err)
		}
		logger.Info("Created bucket", logger.String("bucket", cfg.MinioBucket))
	}

	minioClient = client
	audioBucket = cfg.MinioBucket
	return nil
}

func audioObjectName(sourceID string) string {
	return "audio/" + sourceID
}

// PutAudio stores an audio variant for a source. size may be -1 when
// unknown; MinIO will stream-upload it.
func PutAudio(ctx context.Context, sourceID string, body io.Reader, size int64, mimeType string) error {
	if minioClient == nil {
		return fmt.Errorf("minio is not initialized")
	}

	_, err := minioClient.PutObject(ctx, audioBucket, audioObjectName(sourceID), body, size, minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		return fmt.Errorf("failed to store audio for %s: %w", sourceID, err)
	}
	return nil
}

// GetAudio opens the cached audio variant for a source. Returns the
// body, its content type, and its size; (nil, "", 0, nil) when the
// object does not exist.
func GetAudio(ctx context.Context, sourceID string) (io.ReadCloser, string, int64, error) {
	if minioClient == nil {
		return nil, "", 0, nil
	}

	object, err := minioClient.GetObject(ctx, audioBucket, audioObjectName(sourceID), minio.GetObjectOptions{})
	if err != nil {
		return nil, "", 0, fmt.Errorf("failed to open cached audio for %s: %w", sourceID, err)
	}

	// GetObject is lazy; Stat is the first real round trip.
	stat, err := object.Stat()
	if err != nil {
		object.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, "", 0, nil
		}
		return nil, "", 0, fmt.Errorf("failed to stat cached audio for %s: %w", sourceID, err)
	}

	return object, stat.ContentType, stat.Size, nil
}

// HasAudio reports whether a cached variant exists for the source.
func HasAudio(ctx context.Context, sourceID string) bool {
	if minioClient == nil {
		return false
	}
	_, err := minioClient.StatObject(ctx, audioBucket, audioObjectName(sourceID), minio.StatObjectOptions{})
	return err == nil
}
