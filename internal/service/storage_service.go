package service

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"
	gonanoid "github.com/matoous/go-nanoid/v2"

	config "github.com/maheshrc27/reelqueue/configs"
	"github.com/maheshrc27/reelqueue/internal/transfer"
)

const uploadURLExpiry = 10 * time.Minute

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// StorageService hands out presigned PUT URLs so browsers upload media
// straight to the bucket.
type StorageService interface {
	RequestUploadURL(ctx context.Context, req *transfer.UploadURLRequest) (*transfer.UploadURLResponse, error)
}

type storageService struct {
	presigner *s3.PresignClient
	bucket    string
	publicURL string
}

func NewStorageService(ctx context.Context, cfg config.Spaces) (StorageService, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("load storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" && cfg.Endpoint != "" {
		publicURL = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.BucketName
	}

	return &storageService{
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.BucketName,
		publicURL: publicURL,
	}, nil
}

func (s *storageService) RequestUploadURL(ctx context.Context, req *transfer.UploadURLRequest) (*transfer.UploadURLResponse, error) {
	if req == nil || strings.TrimSpace(req.Filename) == "" {
		return nil, &ValidationError{Field: "filename", Message: "is required"}
	}
	if req.ContentType == "" {
		return nil, &ValidationError{Field: "contentType", Message: "is required"}
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(req.Filename)), ".")
	kind := filetype.GetType(ext)
	if kind == filetype.Unknown || kind.MIME.Type != "video" {
		return nil, &ValidationError{Field: "filename", Message: fmt.Sprintf("unsupported video extension %q", ext)}
	}
	if !strings.HasPrefix(req.ContentType, "video/") {
		return nil, &ValidationError{Field: "contentType", Message: "must be a video type"}
	}

	key, err := objectKey(req.Filename)
	if err != nil {
		return nil, err
	}

	signed, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(req.ContentType),
	}, s3.WithPresignExpires(uploadURLExpiry))
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}

	return &transfer.UploadURLResponse{
		URL:       signed.URL,
		PublicURL: s.publicURL + "/" + key,
	}, nil
}

// objectKey prefixes the cleaned file name with a random id so uploads never collide.
func objectKey(filename string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate object key: %w", err)
	}
	base := unsafeKeyChars.ReplaceAllString(filepath.Base(filename), "-")
	return id + "-" + base, nil
}
