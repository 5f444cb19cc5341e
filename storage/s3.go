// Package storage persists uploaded documents (payment proofs, CVs,
// proposals, banners, programming files) by reference. The core only ever
// stores the returned URL.
package storage

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// Uploader stores a file and returns a stable reference to it.
type Uploader interface {
	Upload(file multipart.File, name string) (string, error)
}

// S3Uploader uploads documents to a single bucket.
type S3Uploader struct {
	Bucket string
	Region string
}

func NewS3Uploader(bucket string) *S3Uploader {
	return &S3Uploader{
		Bucket: bucket,
		Region: os.Getenv("AWS_REGION"),
	}
}

func (u *S3Uploader) Upload(file multipart.File, name string) (string, error) {
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if accessKey == "" || secretKey == "" || u.Region == "" {
		return "", fmt.Errorf("AWS credentials or region not set in environment")
	}

	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(u.Region),
		Credentials: credentials.NewStaticCredentials(accessKey, secretKey, ""),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create AWS session: %w", err)
	}

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, file); err != nil {
		return "", fmt.Errorf("failed to read file buffer: %w", err)
	}

	svc := s3.New(sess)
	_, err = svc.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(u.Bucket),
		Key:    aws.String(name),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file to S3: %w", err)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.Bucket, u.Region, name), nil
}
