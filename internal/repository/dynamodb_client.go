package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"k12-tutor/internal/domain"
)

const (
	skPrefixTurn       = "TURN#"
	skMeta             = "META#"
	defaultTTLDuration = 30 * 24 * time.Hour
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoStore keeps session turns in a single DynamoDB table. Each turn is
// its own item under the session partition, and a META# item tracks the
// turn count and last activity. Items carry a ttl attribute for DynamoDB
// expiry.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

// NewDynamoStore creates a DynamoStore. A non-positive ttl uses 30 days.
func NewDynamoStore(api dynamodbAPI, tableName string, ttl time.Duration) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if ttl <= 0 {
		ttl = defaultTTLDuration
	}
	return &DynamoStore{api: api, tableName: tableName, ttl: ttl, now: time.Now}, nil
}

// sessionPK returns the DynamoDB partition key for a session.
func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

// turnSK returns the sort key for a turn written at ts.
func turnSK(ts time.Time) string {
	return skPrefixTurn + ts.UTC().Format(time.RFC3339Nano)
}

func (s *DynamoStore) ttlValue() int64 {
	return s.now().Add(s.ttl).Unix()
}

// GetOrCreate reads the session's turns. Nothing is written for a new
// session; its partition appears with the first Append.
func (s *DynamoStore) GetOrCreate(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	turns, err := s.queryTurns(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("repository: GetOrCreate: %w", err)
	}
	return turns, nil
}

// History queries all TURN# items for a session in chronological order.
func (s *DynamoStore) History(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	turns, err := s.queryTurns(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("repository: History: %w", err)
	}
	return turns, nil
}

func (s *DynamoStore) queryTurns(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixTurn},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	}

	turns := make([]domain.ConversationTurn, 0)
	for {
		out, err := s.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		for _, item := range out.Items {
			turn, err := itemToTurn(item)
			if err != nil {
				return nil, fmt.Errorf("unmarshal: %w", err)
			}
			turns = append(turns, turn)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return turns, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// Append writes the turn and bumps the session metadata in one transaction.
func (s *DynamoStore) Append(ctx context.Context, sessionID string, turn domain.ConversationTurn) error {
	now := s.now()
	ttl := strconv.FormatInt(s.ttlValue(), 10)

	_, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(s.tableName),
					Item:                turnItem(sessionID, turnSK(now), turn, ttl),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Update: &types.Update{
					TableName: aws.String(s.tableName),
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
						"SK": &types.AttributeValueMemberS{Value: skMeta},
					},
					UpdateExpression: aws.String("ADD turns :one SET sessionId = :sid, lastActivity = :ts, #ttl = :ttl"),
					ExpressionAttributeNames: map[string]string{
						"#ttl": "ttl",
					},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":one": &types.AttributeValueMemberN{Value: "1"},
						":sid": &types.AttributeValueMemberS{Value: sessionID},
						":ts":  &types.AttributeValueMemberS{Value: domain.FormatTimestamp(now)},
						":ttl": &types.AttributeValueMemberN{Value: ttl},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: Append: %w", err)
	}
	return nil
}

// itemToTurn converts a DynamoDB attribute map to a ConversationTurn.
func itemToTurn(item map[string]types.AttributeValue) (domain.ConversationTurn, error) {
	student, err := strAttr(item, "studentMessage")
	if err != nil {
		return domain.ConversationTurn{}, err
	}
	teacher, err := strAttr(item, "teacherResponse")
	if err != nil {
		return domain.ConversationTurn{}, err
	}
	ts, _ := strAttr(item, "timestamp")
	grade, _ := strAttr(item, "gradeLevel")

	return domain.ConversationTurn{
		StudentMessage:  student,
		TeacherResponse: teacher,
		Timestamp:       ts,
		GradeLevel:      grade,
	}, nil
}

func turnItem(sessionID, sk string, turn domain.ConversationTurn, ttl string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":              &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
		"SK":              &types.AttributeValueMemberS{Value: sk},
		"sessionId":       &types.AttributeValueMemberS{Value: sessionID},
		"studentMessage":  &types.AttributeValueMemberS{Value: turn.StudentMessage},
		"teacherResponse": &types.AttributeValueMemberS{Value: turn.TeacherResponse},
		"timestamp":       &types.AttributeValueMemberS{Value: turn.Timestamp},
		"gradeLevel":      &types.AttributeValueMemberS{Value: turn.GradeLevel},
		"ttl":             &types.AttributeValueMemberN{Value: ttl},
	}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}
