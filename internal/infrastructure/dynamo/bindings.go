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

// BindingRepo is the device binding registry. PK: user_id, one row per identity.
type BindingRepo struct {
	client    API
	tableName string
}

func NewBindingRepo(client API, tableName string) *BindingRepo {
	return &BindingRepo{client: client, tableName: tableName}
}

// CheckOrBind binds userID to deviceID when no binding exists, accepts a
// matching binding as a no-op, and returns ErrDeviceConflict otherwise.
// The whole decision is one conditional UpdateItem: if_not_exists keeps an
// existing row byte-for-byte, and the condition rejects a different device,
// so two racing first-time devices cannot both win.
func (r *BindingRepo) CheckOrBind(ctx context.Context, userID, deviceID string, now time.Time) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldUserID, userID),
		UpdateExpression:    aws.String("SET #d = if_not_exists(#d, :d), #b = if_not_exists(#b, :b)"),
		ConditionExpression: aws.String("attribute_not_exists(#u) OR #d = :d"),
		ExpressionAttributeNames: map[string]string{
			"#u": fieldUserID,
			"#d": fieldDeviceID,
			"#b": fieldBoundAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":d": &types.AttributeValueMemberS{Value: deviceID},
			":b": &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339Nano)},
		},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("identity %s is bound to another device: %w", userID, domain.ErrDeviceConflict)
	}
	if err != nil {
		return fmt.Errorf("bind device: %w", err)
	}
	return nil
}

func (r *BindingRepo) Get(ctx context.Context, userID string) (*domain.DeviceBinding, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldUserID, userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("binding not found: %w", domain.ErrNotFound)
	}
	var b domain.DeviceBinding
	if err := attributevalue.UnmarshalMap(out.Item, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Delete removes the binding for userID. This is the administrative reset;
// the validator never calls it.
func (r *BindingRepo) Delete(ctx context.Context, userID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      strKey(fieldUserID, userID),
		ConditionExpression:      aws.String("attribute_exists(#u)"),
		ExpressionAttributeNames: map[string]string{"#u": fieldUserID},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("binding not found: %w", domain.ErrNotFound)
	}
	return err
}
