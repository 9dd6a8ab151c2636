package dynamo

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/scan-validator/internal/domain"
	"github.com/scan-validator/internal/pkg/id"
)

const (
	defaultLedgerAttempts = 64
	backoffBase           = 5 * time.Millisecond
	backoffCap            = 250 * time.Millisecond
)

// AttendanceRepo is the attendance ledger.
//
// Two tables back it:
//   - heads (PK user_id): last_kind and seq of the newest event per identity.
//   - logs  (PK user_id, SK seq): the append-only events read by reporting.
//
// Every append is one TransactWriteItems that advances the head from the seq
// it was read at and puts the matching log row. A concurrent append for the
// same identity cancels the transaction; the loser re-reads and tries again.
// Identities never share a head, so they never contend.
type AttendanceRepo struct {
	client      API
	headsTable  string
	logsTable   string
	maxAttempts int
	backoff     func(attempt int) time.Duration
	clock       func() time.Time
}

func NewAttendanceRepo(client API, headsTable, logsTable string, maxAttempts int) *AttendanceRepo {
	if maxAttempts <= 0 {
		maxAttempts = defaultLedgerAttempts
	}
	return &AttendanceRepo{
		client:      client,
		headsTable:  headsTable,
		logsTable:   logsTable,
		maxAttempts: maxAttempts,
		backoff:     jitteredBackoff,
		clock:       time.Now,
	}
}

// LastEvent returns the most recent kind recorded for userID, or nil.
func (r *AttendanceRepo) LastEvent(ctx context.Context, userID string) (*domain.AttendanceKind, error) {
	h, err := r.head(ctx, userID)
	if err != nil {
		return nil, err
	}
	return h.Last(), nil
}

// ToggleAppend appends the kind that follows the identity's newest event and
// returns the stored event. The read of the head and the append commit as
// one conditional unit, so two requests can never both append after the
// same predecessor. Each attempt stamps the event afresh, no earlier than the
// head it read, so recorded_at order always matches seq order.
func (r *AttendanceRepo) ToggleAppend(ctx context.Context, userID string) (*domain.AttendanceEvent, error) {
	for attempt := 1; ; attempt++ {
		h, err := r.head(ctx, userID)
		if err != nil {
			return nil, err
		}
		ev, err := r.appendAfter(ctx, userID, h)
		if err == nil {
			return ev, nil
		}
		if !isTransactionContention(err) {
			return nil, fmt.Errorf("append attendance: %w", err)
		}
		if attempt >= r.maxAttempts {
			return nil, fmt.Errorf("append attendance for %s after %d attempts: %w", userID, attempt, domain.ErrConflict)
		}
		if err := sleep(ctx, r.backoff(attempt)); err != nil {
			return nil, err
		}
	}
}

func (r *AttendanceRepo) head(ctx context.Context, userID string) (*domain.AttendanceHead, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.headsTable),
		Key:            strKey(fieldUserID, userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("read attendance head: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var h domain.AttendanceHead
	if err := attributevalue.UnmarshalMap(out.Item, &h); err != nil {
		return nil, fmt.Errorf("unmarshal attendance head: %w", err)
	}
	return &h, nil
}

func (r *AttendanceRepo) appendAfter(ctx context.Context, userID string, prev *domain.AttendanceHead) (*domain.AttendanceEvent, error) {
	var (
		prevSeq int64
		prevAt  time.Time
	)
	if prev != nil {
		prevSeq, prevAt = prev.Seq, prev.UpdatedAt
	}
	recordedAt := domain.CommitTime(r.clock(), prevAt)
	ev := &domain.AttendanceEvent{
		EventID:    id.NewAt(recordedAt),
		UserID:     userID,
		Seq:        prevSeq + 1,
		Kind:       domain.NextKind(prev.Last()),
		RecordedAt: recordedAt,
	}

	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldLastKind:  string(ev.Kind),
		fieldSeq:       ev.Seq,
		fieldUpdatedAt: recordedAt,
	})
	if err != nil {
		return nil, err
	}
	var cond string
	if prev == nil {
		cond = "attribute_not_exists(#pk)"
		ue.Names["#pk"] = fieldUserID
	} else {
		cond = "#pseq = :pseq"
		ue.Names["#pseq"] = fieldSeq
		ue.Values[":pseq"] = numValue(prevSeq)
	}

	logItem, err := attributevalue.MarshalMap(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal attendance event: %w", err)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: &types.Update{
				TableName:                 aws.String(r.headsTable),
				Key:                       strKey(fieldUserID, userID),
				UpdateExpression:          aws.String(ue.Expr),
				ConditionExpression:       aws.String(cond),
				ExpressionAttributeNames:  ue.Names,
				ExpressionAttributeValues: ue.Values,
			}},
			{Put: &types.Put{
				TableName:                aws.String(r.logsTable),
				Item:                     logItem,
				ConditionExpression:      aws.String("attribute_not_exists(#s)"),
				ExpressionAttributeNames: map[string]string{"#s": fieldSeq},
			}},
		},
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// jitteredBackoff grows exponentially from backoffBase up to backoffCap and
// picks a uniform delay below that bound.
func jitteredBackoff(attempt int) time.Duration {
	ceil := backoffBase << min(attempt, 6)
	if ceil > backoffCap {
		ceil = backoffCap
	}
	return rand.N(ceil) + time.Millisecond
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
