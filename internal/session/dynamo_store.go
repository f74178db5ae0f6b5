package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/heydoc/booking-platform/pkg/logging"
)

const (
	activeRecordKey  = "active"
	historyRecordPfx = "history#"
	apptRecordPfx    = "appt#"
	dynamoSessionTTL = 24 * time.Hour
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// sessionRecord is the single-table item shape. The active session, archived
// sessions and confirmed appointments share a partition keyed by user id and
// are told apart by the recordKey prefix.
type sessionRecord struct {
	UserID      string                `dynamodbav:"userId"`
	RecordKey   string                `dynamodbav:"recordKey"`
	Session     *UserSession          `dynamodbav:"session,omitempty"`
	Appointment *ConfirmedAppointment `dynamodbav:"appointment,omitempty"`
	ExpiresAt   int64                 `dynamodbav:"expiresAt,omitempty"`
}

// DynamoStore persists sessions in a DynamoDB table. The active session item
// carries a TTL attribute so abandoned conversations age out on their own.
type DynamoStore struct {
	client      dynamoAPI
	tableName   string
	logger      *logging.Logger
	clock       func() time.Time
	idleTimeout time.Duration
	locks       sync.Map // userID -> *sync.Mutex
}

var _ Store = (*DynamoStore)(nil)

// DynamoOption configures a DynamoStore.
type DynamoOption func(*DynamoStore)

// WithDynamoIdleTimeout expires sessions idle for longer than d.
func WithDynamoIdleTimeout(d time.Duration) DynamoOption {
	return func(s *DynamoStore) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// WithDynamoClock overrides the time source.
func WithDynamoClock(clock func() time.Time) DynamoOption {
	return func(s *DynamoStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewDynamoStore builds a store backed by the provided DynamoDB client.
func NewDynamoStore(client dynamoAPI, tableName string, logger *logging.Logger, opts ...DynamoOption) *DynamoStore {
	if client == nil {
		panic("session: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("session: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &DynamoStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
		clock:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DynamoStore) userLock(userID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *DynamoStore) StartNewSession(ctx context.Context, userID string) (*UserSession, error) {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	now := s.clock()
	existing, err := s.loadLive(ctx, userID, now)
	if err != nil && err != ErrNoActiveSession {
		return nil, err
	}
	if existing != nil {
		if err := s.archive(ctx, existing, StatusEnded, now); err != nil {
			return nil, err
		}
	}

	sess := &UserSession{
		ID:           uuid.NewString(),
		UserID:       userID,
		Status:       StatusNew,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastActiveAt: now,
	}
	sess.Info.Recompute()
	if err := s.save(ctx, sess, now); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *DynamoStore) GetSession(ctx context.Context, userID string) (*UserSession, error) {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	return s.loadLive(ctx, userID, s.clock())
}

func (s *DynamoStore) HasActiveSession(ctx context.Context, userID string) (bool, error) {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	_, err := s.loadLive(ctx, userID, s.clock())
	if err == ErrNoActiveSession {
		return false, nil
	}
	return err == nil, err
}

func (s *DynamoStore) AddMessage(ctx context.Context, userID string, msg Message) error {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	now := s.clock()
	sess, err := s.loadLive(ctx, userID, now)
	if err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = now
	sess.LastActiveAt = now
	return s.save(ctx, sess, now)
}

func (s *DynamoStore) UpdateAppointmentInfo(ctx context.Context, userID string, patch AppointmentInfo) (*UserSession, error) {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	now := s.clock()
	sess, err := s.loadLive(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	sess.Info.Merge(patch)
	sess.UpdatedAt = now
	if err := s.save(ctx, sess, now); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *DynamoStore) SetStatus(ctx context.Context, userID string, status Status) error {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	now := s.clock()
	sess, err := s.loadLive(ctx, userID, now)
	if err != nil {
		return err
	}
	sess.Status = status
	sess.UpdatedAt = now
	return s.save(ctx, sess, now)
}

func (s *DynamoStore) SetSuggestion(ctx context.Context, userID string, suggestion *SuggestedAppointment) error {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	now := s.clock()
	sess, err := s.loadLive(ctx, userID, now)
	if err != nil {
		return err
	}
	sess.Suggestion = suggestion
	sess.UpdatedAt = now
	return s.save(ctx, sess, now)
}

func (s *DynamoStore) IsReadyForSuggestion(ctx context.Context, userID string) (bool, error) {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.loadLive(ctx, userID, s.clock())
	if err != nil {
		return false, err
	}
	return sess.Info.Complete(), nil
}

func (s *DynamoStore) ConfirmAppointment(ctx context.Context, userID string) (*ConfirmedAppointment, error) {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	now := s.clock()
	sess, err := s.loadLive(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if sess.Suggestion == nil {
		return nil, ErrNoSuggestion
	}

	appt := ConfirmedAppointment{
		ID:               uuid.NewString(),
		UserID:           userID,
		SessionID:        sess.ID,
		DoctorID:         sess.Suggestion.DoctorID,
		DoctorName:       sess.Suggestion.DoctorName,
		Specialty:        sess.Suggestion.Specialty,
		Location:         sess.Suggestion.Location,
		DateTime:         sess.Suggestion.DateTime,
		Teleconsultation: sess.Suggestion.Teleconsultation,
		Status:           AppointmentStatusScheduled,
		ConfirmedAt:      now,
	}
	if err := s.putRecord(ctx, sessionRecord{
		UserID:      userID,
		RecordKey:   apptRecordPfx + now.Format(time.RFC3339Nano) + "#" + appt.ID,
		Appointment: &appt,
	}); err != nil {
		return nil, fmt.Errorf("session: failed to persist appointment: %w", err)
	}
	if err := s.archive(ctx, sess, StatusConfirmed, now); err != nil {
		return nil, err
	}
	return &appt, nil
}

func (s *DynamoStore) EndSession(ctx context.Context, userID string, status Status) error {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.loadLive(ctx, userID, s.clock())
	if err == ErrNoActiveSession {
		return nil
	}
	if err != nil {
		return err
	}
	if !status.Terminal() {
		status = StatusEnded
	}
	return s.archive(ctx, sess, status, s.clock())
}

func (s *DynamoStore) History(ctx context.Context, userID string) ([]UserSession, error) {
	records, err := s.queryPrefix(ctx, userID, historyRecordPfx)
	if err != nil {
		return nil, fmt.Errorf("session: failed to load history: %w", err)
	}
	out := make([]UserSession, 0, len(records))
	for _, rec := range records {
		if rec.Session != nil {
			out = append(out, *rec.Session)
		}
	}
	return out, nil
}

func (s *DynamoStore) Appointments(ctx context.Context, userID string) ([]ConfirmedAppointment, error) {
	records, err := s.queryPrefix(ctx, userID, apptRecordPfx)
	if err != nil {
		return nil, fmt.Errorf("session: failed to load appointments: %w", err)
	}
	out := make([]ConfirmedAppointment, 0, len(records))
	for _, rec := range records {
		if rec.Appointment != nil {
			out = append(out, *rec.Appointment)
		}
	}
	return out, nil
}

func (s *DynamoStore) loadLive(ctx context.Context, userID string, now time.Time) (*UserSession, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"userId":    &types.AttributeValueMemberS{Value: userID},
			"recordKey": &types.AttributeValueMemberS{Value: activeRecordKey},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("session: failed to fetch session: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNoActiveSession
	}
	var rec sessionRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("session: failed to decode session: %w", err)
	}
	if rec.Session == nil {
		return nil, ErrNoActiveSession
	}
	if s.idleTimeout > 0 && now.Sub(rec.Session.LastActiveAt) >= s.idleTimeout {
		if err := s.archive(ctx, rec.Session, StatusExpired, now); err != nil {
			return nil, err
		}
		return nil, ErrNoActiveSession
	}
	return rec.Session, nil
}

func (s *DynamoStore) save(ctx context.Context, sess *UserSession, now time.Time) error {
	err := s.putRecord(ctx, sessionRecord{
		UserID:    sess.UserID,
		RecordKey: activeRecordKey,
		Session:   sess,
		ExpiresAt: now.Add(dynamoSessionTTL).Unix(),
	})
	if err != nil {
		return fmt.Errorf("session: failed to persist session: %w", err)
	}
	return nil
}

func (s *DynamoStore) archive(ctx context.Context, sess *UserSession, status Status, now time.Time) error {
	sess.Status = status
	sess.UpdatedAt = now
	err := s.putRecord(ctx, sessionRecord{
		UserID:    sess.UserID,
		RecordKey: historyRecordPfx + now.Format(time.RFC3339Nano) + "#" + sess.ID,
		Session:   sess,
	})
	if err != nil {
		return fmt.Errorf("session: failed to archive session: %w", err)
	}
	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"userId":    &types.AttributeValueMemberS{Value: sess.UserID},
			"recordKey": &types.AttributeValueMemberS{Value: activeRecordKey},
		},
	})
	if err != nil {
		return fmt.Errorf("session: failed to drop session: %w", err)
	}
	return nil
}

func (s *DynamoStore) putRecord(ctx context.Context, rec sessionRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("session: failed to marshal record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	return err
}

// queryPrefix returns the user's records whose sort key starts with prefix,
// oldest first. The sort key embeds an RFC 3339 timestamp so lexicographic
// order is chronological.
func (s *DynamoStore) queryPrefix(ctx context.Context, userID, prefix string) ([]sessionRecord, error) {
	var records []sessionRecord
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("userId = :uid AND begins_with(recordKey, :pfx)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uid": &types.AttributeValueMemberS{Value: userID},
				":pfx": &types.AttributeValueMemberS{Value: prefix},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, err
		}
		for _, item := range out.Items {
			var rec sessionRecord
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return records, nil
}
