package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/scan-validator/internal/domain"
)

// EventPublisher fans accepted attendance events out to reporting consumers.
type EventPublisher interface {
	PublishAttendance(ctx context.Context, ev *domain.AttendanceEvent) error
}

// PublishAPI is the subset of the SNS client the publisher uses.
type PublishAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type publisher struct {
	client   PublishAPI
	topicARN string
}

// NewPublisher returns a publisher for topicARN.
func NewPublisher(client PublishAPI, topicARN string) EventPublisher {
	return &publisher{client: client, topicARN: topicARN}
}

// NewClient builds an SNS client from an already resolved AWS config.
func NewClient(awsCfg aws.Config, endpointURL string) *sns.Client {
	return sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if endpointURL != "" {
			o.BaseEndpoint = aws.String(endpointURL)
		}
	})
}

func (p *publisher) PublishAttendance(ctx context.Context, ev *domain.AttendanceEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal attendance event: %w", err)
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"kind":    {DataType: aws.String("String"), StringValue: aws.String(string(ev.Kind))},
			"user_id": {DataType: aws.String("String"), StringValue: aws.String(ev.UserID)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish attendance event %s: %w", ev.EventID, err)
	}
	return nil
}
