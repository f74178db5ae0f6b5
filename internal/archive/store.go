package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/heydoc/booking-platform/internal/session"
	"github.com/heydoc/booking-platform/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ManifestEntry is one line of the monthly session manifest.
type ManifestEntry struct {
	SessionID    string `json:"session_id"`
	UserID       string `json:"user_id"`
	S3Key        string `json:"s3_key"`
	Status       string `json:"status"`
	MessageCount int    `json:"message_count"`
	ArchivedAt   string `json:"archived_at"`
}

// Store writes finished booking sessions to S3 as JSON documents.
type Store struct {
	bucket string
	client S3API
	logger *logging.Logger
	clock  func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreClock overrides the time source.
func WithStoreClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewStore creates an archive Store. If bucket is empty, every operation is
// a no-op.
func NewStore(client S3API, bucket string, logger *logging.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Store{
		bucket: bucket,
		client: client,
		logger: logger,
		clock:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether archival is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.client != nil
}

// ArchiveSession writes the session transcript as JSON and appends it to
// the monthly manifest.
func (s *Store) ArchiveSession(ctx context.Context, sess *session.UserSession) error {
	if !s.Enabled() {
		return nil
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("archive: marshal session: %w", err)
	}

	now := s.clock()
	key := fmt.Sprintf("sessions/v1/by-date/%d/%02d/%02d/%s.json",
		now.Year(), now.Month(), now.Day(), sess.ID)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", key, err)
	}

	s.logger.Info("session archived",
		"session_id", sess.ID,
		"s3_key", key,
		"message_count", len(sess.Messages),
	)

	entry := ManifestEntry{
		SessionID:    sess.ID,
		UserID:       sess.UserID,
		S3Key:        key,
		Status:       string(sess.Status),
		MessageCount: len(sess.Messages),
		ArchivedAt:   now.Format(time.RFC3339),
	}
	if err := s.appendManifest(ctx, entry); err != nil {
		// The session document is already stored, so only log.
		s.logger.Warn("failed to append manifest", "error", err, "session_id", sess.ID)
	}
	return nil
}

// appendManifest adds a JSONL line to the monthly manifest. S3 has no
// append, so this is read-modify-write.
func (s *Store) appendManifest(ctx context.Context, entry ManifestEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}

	now := s.clock()
	manifestKey := fmt.Sprintf("sessions/v1/manifests/%d-%02d.jsonl", now.Year(), now.Month())

	var existing []byte
	getResp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(manifestKey),
	})
	if err != nil {
		if !isNotFound(err) {
			s.logger.Debug("manifest read failed, starting fresh", "key", manifestKey, "error", err)
		}
	} else {
		existing, _ = io.ReadAll(getResp.Body)
		getResp.Body.Close()
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(manifestKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "404") ||
		strings.Contains(msg, "not found")
}
