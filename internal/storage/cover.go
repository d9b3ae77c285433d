// Package storage hands out presigned upload URLs for template cover images.
// The server never proxies image bytes: the browser PUTs straight to the
// bucket and stores the returned public URL as the template's cover_image.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/xid"

	"github.com/sakif/devxboard/internal/apperror"
)

const UploadExpiry = 15 * time.Minute

// Config describes an S3-compatible bucket. Endpoint is empty for AWS itself
// and set for R2, MinIO and friends.
type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PublicBaseURL   string
}

// Upload is what the client needs to send the file and reference it later.
type Upload struct {
	UploadURL string            `json:"upload_url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	PublicURL string            `json:"public_url"`
	Key       string            `json:"key"`
	ExpiresAt time.Time         `json:"expires_at"`
}

type CoverStore struct {
	presigner *s3.PresignClient
	bucket    string
	publicURL string
	now       func() time.Time
}

func NewCoverStore(cfg Config) *CoverStore {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	awsCfg := aws.Config{
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Region:      region,
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	public := strings.TrimRight(cfg.PublicBaseURL, "/")
	if public == "" && cfg.Endpoint != "" {
		public = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}
	if public == "" {
		public = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, region)
	}

	return &CoverStore{
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		publicURL: public,
		now:       time.Now,
	}
}

var imageExtensions = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/avif":    ".avif",
	"image/svg+xml": ".svg",
}

// PresignCover returns a PUT URL for one cover image of ownerID. Only image
// content types are accepted; the content type is part of the signature, so
// the client must send the same Content-Type header.
func (s *CoverStore) PresignCover(ctx context.Context, ownerID, filename, contentType string) (*Upload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if !strings.HasPrefix(contentType, "image/") {
		return nil, apperror.ValidationFailed("content_type", "only image uploads are allowed")
	}

	ext := strings.ToLower(path.Ext(strings.TrimSpace(filename)))
	if known, ok := imageExtensions[contentType]; ok && ext == "" {
		ext = known
	}
	if len(ext) > 8 || strings.ContainsAny(ext, "/\\?#") {
		ext = ""
	}
	key := fmt.Sprintf("covers/%s/%s%s", ownerID, xid.New().String(), ext)

	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(UploadExpiry))
	if err != nil {
		return nil, apperror.Upstream("object storage", err)
	}

	return &Upload{
		UploadURL: req.URL,
		Method:    req.Method,
		Headers:   map[string]string{"Content-Type": contentType},
		PublicURL: s.publicURL + "/" + key,
		Key:       key,
		ExpiresAt: s.now().Add(UploadExpiry).UTC(),
	}, nil
}
