// Package dynamo implements the session store on DynamoDB. Each session is
// one item keyed by chat_id; creates and updates are conditional writes so
// concurrent turns on the same chat cannot clobber each other.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/vibelab/chatrelay/internal/chat"
	"github.com/vibelab/chatrelay/internal/config"
	"github.com/vibelab/chatrelay/internal/store"
)

// record is the DynamoDB item shape. Timestamps are RFC 3339 strings to
// stay readable in the console and compatible with items written by
// earlier revisions of the service.
type record struct {
	ChatID    string          `dynamodbav:"chat_id"`
	UserID    string          `dynamodbav:"user_id"`
	Messages  []messageRecord `dynamodbav:"messages"`
	Version   int64           `dynamodbav:"version"`
	CreatedAt string          `dynamodbav:"created_at"`
	UpdatedAt string          `dynamodbav:"updated_at"`
}

type messageRecord struct {
	Role      string `dynamodbav:"role"`
	Content   string `dynamodbav:"content"`
	Timestamp string `dynamodbav:"timestamp"`
}

// Store is a SessionStore backed by a DynamoDB table.
type Store struct {
	client *dynamodb.Client
	table  string
}

// Open builds a DynamoDB-backed store from the ambient AWS configuration.
// A non-empty endpoint points the client at a local emulator, which also
// gets dummy static credentials so the SDK does not probe the chain.
func Open(ctx context.Context, cfg config.DynamoConfig) (*Store, error) {
	if cfg.Table == "" {
		return nil, errors.New("dynamo: table name is required")
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Endpoint != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Store{client: client, table: cfg.Table}, nil
}

func (s *Store) Get(ctx context.Context, chatID string) (*chat.Session, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            key(chatID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, chat.ErrNotFound
	}
	var rec record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return fromRecord(&rec)
}

func (s *Store) Create(ctx context.Context, sess *chat.Session) error {
	sess.Version = 1
	item, err := attributevalue.MarshalMap(toRecord(sess))
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(chat_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, sess *chat.Session) error {
	expected := sess.Version
	sess.Version = expected + 1
	item, err := attributevalue.MarshalMap(toRecord(sess))
	if err != nil {
		sess.Version = expected
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("version = :v"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expected)},
		},
	})
	if err != nil {
		sess.Version = expected
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			// Condition also fails when the item is gone entirely.
			if _, gerr := s.Get(ctx, sess.ChatID); errors.Is(gerr, chat.ErrNotFound) {
				return chat.ErrNotFound
			}
			return store.ErrVersionConflict
		}
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

func (s *Store) CountByUser(ctx context.Context, userID string) (int, error) {
	total := 0
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(s.table),
			FilterExpression: aws.String("user_id = :uid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uid": &types.AttributeValueMemberS{Value: userID},
			},
			Select:            types.SelectCount,
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return 0, fmt.Errorf("count sessions: %w", err)
		}
		total += int(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			return total, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func (s *Store) Close() error { return nil }

func key(chatID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"chat_id": &types.AttributeValueMemberS{Value: chatID},
	}
}

func toRecord(sess *chat.Session) *record {
	rec := &record{
		ChatID:    sess.ChatID,
		UserID:    sess.UserID,
		Version:   sess.Version,
		CreatedAt: sess.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: sess.UpdatedAt.UTC().Format(time.RFC3339Nano),
		Messages:  make([]messageRecord, 0, len(sess.Messages)),
	}
	for _, m := range sess.Messages {
		rec.Messages = append(rec.Messages, messageRecord{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}
	return rec
}

func fromRecord(rec *record) (*chat.Session, error) {
	sess := &chat.Session{
		ChatID:   rec.ChatID,
		UserID:   rec.UserID,
		Version:  rec.Version,
		Messages: make([]chat.Message, 0, len(rec.Messages)),
	}
	var err error
	if sess.CreatedAt, err = parseTime(rec.CreatedAt); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if sess.UpdatedAt, err = parseTime(rec.UpdatedAt); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	for _, m := range rec.Messages {
		ts, err := parseTime(m.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("decode message timestamp: %w", err)
		}
		sess.Messages = append(sess.Messages, chat.Message{Role: m.Role, Content: m.Content, Timestamp: ts})
	}
	return sess, nil
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}
