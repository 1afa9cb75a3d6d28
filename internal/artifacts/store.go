// Package artifacts persists per-stage pipeline outputs in an object store.
// Each stage maps 1:1 to a logical bucket; object names are derived from the
// invoice identity so re-running a stage overwrites its previous artifact.
package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
)

// Fixed stage buckets.
const (
	BucketRawInvoices     = "raw-invoices"
	BucketOCROutput       = "ocr-output"
	BucketLLMOutput       = "llm-output"
	BucketCleanedInvoices = "cleaned-invoices"
)

// Buckets lists every stage bucket, creation order.
var Buckets = []string{BucketRawInvoices, BucketOCROutput, BucketLLMOutput, BucketCleanedInvoices}

// Store is the minimal object-store surface the orchestrator needs.
// Get returns (nil, nil) for absent objects: "not yet run" is a state,
// not an error.
type Store interface {
	Put(ctx context.Context, bucket, object string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, bucket, object string) ([]byte, error)
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

// RawObjectName names the immutable ingestion artifact, keeping the upload's
// file extension.
func RawObjectName(invoiceID int64, filename string) string {
	ext := extOf(filename)
	return fmt.Sprintf("invoice_%d_raw.%s", invoiceID, ext)
}

// OCRObjectName names the extracted-text artifact.
func OCRObjectName(invoiceID int64) string {
	return fmt.Sprintf("invoice_%d_ocr.txt", invoiceID)
}

// LLMObjectName names the raw LLM extraction artifact.
func LLMObjectName(invoiceID int64) string {
	return fmt.Sprintf("invoice_%d_llm.json", invoiceID)
}

// CleanedObjectName names the validated/cleaned artifact.
func CleanedObjectName(invoiceID int64) string {
	return fmt.Sprintf("invoice_%d_cleaned.json", invoiceID)
}

// InvoicePrefix is the listing prefix covering every artifact of one invoice
// within a bucket.
func InvoicePrefix(invoiceID int64) string {
	return fmt.Sprintf("invoice_%d_", invoiceID)
}

func extOf(filename string) string {
	for i := len(filename) - 1; i >= 0; i-- {
		if filename[i] == '.' {
			if i == len(filename)-1 {
				break
			}
			return filename[i+1:]
		}
	}
	return "bin"
}

// MinioStore implements Store against MinIO (or any S3-compatible endpoint).
type MinioStore struct {
	client *minio.Client
	logger *slog.Logger
}

func NewMinioStore(cfg common.StorageConfig, logger *slog.Logger) (*MinioStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, common.WrapError(err, "create object store client")
	}
	return &MinioStore{client: client, logger: logger}, nil
}

// EnsureBuckets creates any missing stage bucket. Safe to call on every boot.
func (s *MinioStore) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range Buckets {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return common.WrapError(err, "check bucket "+bucket)
		}
		if exists {
			continue
		}
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return common.WrapError(err, "create bucket "+bucket)
		}
		s.logger.Info("artifacts.bucket.created", "bucket", bucket)
	}
	return nil
}

// Put uploads data, overwriting any previous object of the same name.
func (s *MinioStore) Put(ctx context.Context, bucket, object string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, bucket, object, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		s.logger.Error("artifacts.put.failed", "bucket", bucket, "object", object, "error", err)
		return "", common.WrapError(err, "put object "+bucket+"/"+object)
	}
	s.logger.Debug("artifacts.put.ok", "bucket", bucket, "object", object, "bytes", len(data))
	return object, nil
}

// Get downloads an object, returning (nil, nil) when it does not exist.
func (s *MinioStore) Get(ctx context.Context, bucket, object string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, common.WrapError(err, "get object "+bucket+"/"+object)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return nil, nil
		}
		return nil, common.WrapError(err, "read object "+bucket+"/"+object)
	}
	return data, nil
}

// List returns the object names under prefix.
func (s *MinioStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var names []string
	for info := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if info.Err != nil {
			return nil, common.WrapError(info.Err, "list objects "+bucket+"/"+prefix)
		}
		names = append(names, info.Key)
	}
	return names, nil
}
