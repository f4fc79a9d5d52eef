package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"codearena/internal/common/storage"
	appErr "codearena/pkg/errors"

	"github.com/klauspost/compress/zstd"
)

const defaultSourcePrefix = "submissions"

// SourceArchive keeps zstd-compressed submission sources in object storage.
type SourceArchive struct {
	storage storage.ObjectStorage
	bucket  string
	prefix  string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewSourceArchive creates an archive writing under prefix in bucket.
func NewSourceArchive(store storage.ObjectStorage, bucket, prefix string) (*SourceArchive, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("source bucket is required")
	}
	if prefix == "" {
		prefix = defaultSourcePrefix
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder failed: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder failed: %w", err)
	}
	return &SourceArchive{storage: store, bucket: bucket, prefix: prefix, encoder: encoder, decoder: decoder}, nil
}

// Key is the object key for a submission's source.
func (a *SourceArchive) Key(submissionID, language string) string {
	return fmt.Sprintf("%s/%s/source.%s.zst", a.prefix, submissionID, language)
}

// Put compresses and uploads source, returning its object key.
func (a *SourceArchive) Put(ctx context.Context, submissionID, language, source string) (string, error) {
	key := a.Key(submissionID, language)
	payload := a.encoder.EncodeAll([]byte(source), nil)
	if err := a.storage.PutObject(ctx, a.bucket, key, bytes.NewReader(payload), int64(len(payload)), "application/zstd"); err != nil {
		return "", appErr.Wrapf(err, appErr.SubmissionCreateFailed, "upload source failed")
	}
	return key, nil
}

// Get downloads and decompresses a source. A non-empty wantHash is verified.
func (a *SourceArchive) Get(ctx context.Context, key, wantHash string) (string, error) {
	reader, err := a.storage.GetObject(ctx, a.bucket, key)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.InternalServerError, "download source failed")
	}
	defer reader.Close()
	payload, err := io.ReadAll(reader)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.InternalServerError, "read source failed")
	}
	source, err := a.decoder.DecodeAll(payload, nil)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.InternalServerError, "decompress source failed")
	}
	if wantHash != "" && hashSource(string(source)) != wantHash {
		return "", appErr.New(appErr.InternalServerError).WithMessage("archived source hash mismatch")
	}
	return string(source), nil
}

func hashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
