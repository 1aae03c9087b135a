package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/NomadCrew/release-gate/config"
	apperrors "github.com/NomadCrew/release-gate/errors"
	"github.com/NomadCrew/release-gate/logger"
	"github.com/NomadCrew/release-gate/types"
)

// objectStore is the slice of the S3 API the archiver needs. Satisfied by
// *s3.Client and by test fakes.
type objectStore interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver copies report artifacts to S3-compatible object storage (AWS S3
// or Cloudflare R2 via an endpoint override) so gate evidence survives the
// CI runner's workspace. Archive failures are reported but must never alter
// the gate decision or exit code; callers log and move on.
type Archiver struct {
	client objectStore
	bucket string
	prefix string
	log    *zap.SugaredLogger
}

// NewArchiver builds an archiver from config. Returns nil without error when
// archiving is disabled so callers can gate on a nil check.
func NewArchiver(ctx context.Context, cfg config.ArchiveConfig) (*Archiver, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ServerError, "failed to load object storage config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Archiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		log:    logger.GetLogger().Named("archive"),
	}, nil
}

// NewArchiverWithClient wires an archiver onto an existing client. Used by
// tests.
func NewArchiverWithClient(client objectStore, bucket, prefix string) *Archiver {
	return &Archiver{
		client: client,
		bucket: bucket,
		prefix: prefix,
		log:    logger.GetLogger().Named("archive"),
	}
}

// Archive uploads the artifact at localPath under
// <prefix>/<environment>/<filename> and returns the object key. A key that
// already exists is prior evidence: it is left untouched and the upload is
// skipped.
func (a *Archiver) Archive(ctx context.Context, localPath string, report *types.GateReport) (string, error) {
	key := path.Join(a.prefix, report.Environment, ArtifactFilename(report))

	if a.exists(ctx, key) {
		a.log.Infow("Artifact already archived, skipping upload", "key", key)
		return key, nil
	}

	content, err := os.ReadFile(localPath)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ServerError, "failed to read report artifact for archiving")
	}

	// Content type from the bytes, not the file extension
	contentType := mimetype.Detect(content).String()

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:            aws.String(a.bucket),
		Key:               aws.String(key),
		Body:              bytes.NewReader(content),
		ContentType:       aws.String(contentType),
		ChecksumAlgorithm: s3types.ChecksumAlgorithmCrc32,
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ServerError,
			fmt.Sprintf("failed to archive report to bucket %s", a.bucket))
	}

	a.log.Infow("Report artifact archived",
		"bucket", a.bucket,
		"key", key,
		"contentType", contentType,
		"bytes", len(content))
	return key, nil
}

// exists checks for an object via HeadObject.
func (a *Archiver) exists(ctx context.Context, key string) bool {
	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	return err == nil
}
