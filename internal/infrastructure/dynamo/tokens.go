package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/scan-validator/internal/domain"
)

// tokenItem is the stored shape of a scan code. PK: code.
// expires_at is whole Unix seconds for DynamoDB TTL housekeeping;
// expires_at_ms carries the precise instant checked on consume.
type tokenItem struct {
	Code        string `dynamodbav:"code"`
	ExpiresAtMs int64  `dynamodbav:"expires_at_ms"`
	ExpiresAt   int64  `dynamodbav:"expires_at"`
}

// TokenRepo stores outstanding single-use scan codes.
type TokenRepo struct {
	client    API
	tableName string
}

func NewTokenRepo(client API, tableName string) *TokenRepo {
	return &TokenRepo{client: client, tableName: tableName}
}

// Put stores a freshly issued code. It never overwrites an existing code,
// so a collision surfaces as ErrConflict instead of resurrecting a token.
func (r *TokenRepo) Put(ctx context.Context, t *domain.ScanToken) error {
	item, err := attributevalue.MarshalMap(tokenItem{
		Code:        t.Code,
		ExpiresAtMs: t.ExpiresAt.UnixMilli(),
		ExpiresAt:   t.ExpiresAt.Add(time.Second - 1).Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#c)"),
		ExpressionAttributeNames: map[string]string{"#c": fieldCode},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("token already exists: %w", domain.ErrConflict)
	}
	return err
}

// Consume deletes code if and only if it exists and expires after now, in a
// single conditional DeleteItem. Of any number of concurrent callers with the
// same code at most one observes true. Absent or expired codes return false
// and leave the table untouched.
func (r *TokenRepo) Consume(ctx context.Context, code string, now time.Time) (bool, error) {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldCode, code),
		ConditionExpression: aws.String("attribute_exists(#c) AND #e > :now"),
		ExpressionAttributeNames: map[string]string{
			"#c": fieldCode,
			"#e": fieldExpiresAtMs,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": numValue(now.UnixMilli()),
		},
	})
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consume token: %w", err)
	}
	return true, nil
}
