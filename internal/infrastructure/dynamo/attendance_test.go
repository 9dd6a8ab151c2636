package dynamo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/scan-validator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestLedger(api API, attempts int) *AttendanceRepo {
	r := NewAttendanceRepo(api, "attendance_heads", "attendance_logs", attempts)
	r.backoff = func(int) time.Duration { return 0 }
	r.clock = func() time.Time { return t0 }
	return r
}

func headOutput(t *testing.T, kind domain.AttendanceKind, seq int64) *dynamodb.GetItemOutput {
	t.Helper()
	item, err := attributevalue.MarshalMap(domain.AttendanceHead{UserID: "u1", LastKind: kind, Seq: seq, UpdatedAt: t0})
	require.NoError(t, err)
	return &dynamodb.GetItemOutput{Item: item}
}

func contention() error {
	return &types.TransactionCanceledException{CancellationReasons: []types.CancellationReason{
		{Code: aws.String("ConditionalCheckFailed")},
		{Code: aws.String("None")},
	}}
}

// transactFor matches a two-item transaction that appends kind at seq after
// a head guarded by headCond.
func transactFor(kind domain.AttendanceKind, seq string, headCond string) interface{} {
	return mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
		if len(in.TransactItems) != 2 {
			return false
		}
		upd, put := in.TransactItems[0].Update, in.TransactItems[1].Put
		if upd == nil || put == nil {
			return false
		}
		k, _ := put.Item["kind"].(*types.AttributeValueMemberS)
		s, _ := put.Item["seq"].(*types.AttributeValueMemberN)
		return aws.ToString(upd.TableName) == "attendance_heads" &&
			aws.ToString(upd.ConditionExpression) == headCond &&
			aws.ToString(put.TableName) == "attendance_logs" &&
			aws.ToString(put.ConditionExpression) == "attribute_not_exists(#s)" &&
			k != nil && k.Value == string(kind) &&
			s != nil && s.Value == seq
	})
}

func TestAttendanceRepo_LastEvent_NoHistory(t *testing.T) {
	api := &mockAPI{}
	api.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

	last, err := newTestLedger(api, 3).LastEvent(context.Background(), "u1")

	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestAttendanceRepo_LastEvent(t *testing.T) {
	api := &mockAPI{}
	api.On("GetItem", mock.Anything, mock.Anything).Return(headOutput(t, domain.KindDeparture, 2), nil)

	last, err := newTestLedger(api, 3).LastEvent(context.Background(), "u1")

	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, domain.KindDeparture, *last)
}

func TestAttendanceRepo_ToggleAppend_FirstEventIsArrival(t *testing.T) {
	api := &mockAPI{}
	api.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)
	api.On("TransactWriteItems", mock.Anything, transactFor(domain.KindArrival, "1", "attribute_not_exists(#pk)")).
		Return(&dynamodb.TransactWriteItemsOutput{}, nil)

	ev, err := newTestLedger(api, 3).ToggleAppend(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, domain.KindArrival, ev.Kind)
	assert.Equal(t, int64(1), ev.Seq)
	assert.Equal(t, "u1", ev.UserID)
	assert.NotEmpty(t, ev.EventID)
	assert.True(t, t0.Equal(ev.RecordedAt))
	api.AssertExpectations(t)
}

func TestAttendanceRepo_ToggleAppend_AfterArrivalIsDeparture(t *testing.T) {
	api := &mockAPI{}
	api.On("GetItem", mock.Anything, mock.Anything).Return(headOutput(t, domain.KindArrival, 5), nil)
	api.On("TransactWriteItems", mock.Anything, transactFor(domain.KindDeparture, "6", "#pseq = :pseq")).
		Return(&dynamodb.TransactWriteItemsOutput{}, nil)

	ev, err := newTestLedger(api, 3).ToggleAppend(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, domain.KindDeparture, ev.Kind)
	assert.Equal(t, int64(6), ev.Seq)
	// The head was written at t0 too, so the new event lands just after it.
	assert.True(t, ev.RecordedAt.After(t0))
}

func TestAttendanceRepo_ToggleAppend_ClampsToHeadTime(t *testing.T) {
	api := &mockAPI{}
	api.On("GetItem", mock.Anything, mock.Anything).Return(headOutput(t, domain.KindArrival, 1), nil)
	api.On("TransactWriteItems", mock.Anything, transactFor(domain.KindDeparture, "2", "#pseq = :pseq")).
		Return(&dynamodb.TransactWriteItemsOutput{}, nil)

	r := newTestLedger(api, 3)
	r.clock = func() time.Time { return t0.Add(-time.Second) }
	ev, err := r.ToggleAppend(context.Background(), "u1")

	require.NoError(t, err)
	assert.True(t, ev.RecordedAt.After(t0))
}

func TestAttendanceRepo_ToggleAppend_RetriesAfterLosingRace(t *testing.T) {
	api := &mockAPI{}
	// First read sees no history; a concurrent writer commits the arrival first.
	api.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil).Once()
	api.On("TransactWriteItems", mock.Anything, transactFor(domain.KindArrival, "1", "attribute_not_exists(#pk)")).
		Return(nil, contention()).Once()
	api.On("GetItem", mock.Anything, mock.Anything).Return(headOutput(t, domain.KindArrival, 1), nil).Once()
	api.On("TransactWriteItems", mock.Anything, transactFor(domain.KindDeparture, "2", "#pseq = :pseq")).
		Return(&dynamodb.TransactWriteItemsOutput{}, nil).Once()

	r := newTestLedger(api, 3)
	calls := 0
	r.clock = func() time.Time {
		calls++
		return t0.Add(time.Duration(calls) * time.Second)
	}
	ev, err := r.ToggleAppend(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, domain.KindDeparture, ev.Kind)
	assert.Equal(t, int64(2), ev.Seq)
	// Stamped on the winning attempt, not the first one.
	assert.True(t, t0.Add(2*time.Second).Equal(ev.RecordedAt))
	api.AssertExpectations(t)
}

func TestAttendanceRepo_ToggleAppend_GivesUpAfterMaxAttempts(t *testing.T) {
	api := &mockAPI{}
	api.On("GetItem", mock.Anything, mock.Anything).Return(headOutput(t, domain.KindArrival, 1), nil)
	api.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, contention())

	_, err := newTestLedger(api, 3).ToggleAppend(context.Background(), "u1")

	assert.ErrorIs(t, err, domain.ErrConflict)
	api.AssertNumberOfCalls(t, "TransactWriteItems", 3)
}

func TestAttendanceRepo_ToggleAppend_StorageErrorNotRetried(t *testing.T) {
	api := &mockAPI{}
	api.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)
	api.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, errors.New("service unavailable"))

	_, err := newTestLedger(api, 3).ToggleAppend(context.Background(), "u1")

	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrConflict))
	api.AssertNumberOfCalls(t, "TransactWriteItems", 1)
}

func TestAttendanceRepo_ToggleAppend_HonoursCancellation(t *testing.T) {
	api := &mockAPI{}
	api.On("GetItem", mock.Anything, mock.Anything).Return(headOutput(t, domain.KindArrival, 1), nil)
	api.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, contention())

	r := newTestLedger(api, 10)
	r.backoff = func(int) time.Duration { return time.Hour }
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.ToggleAppend(ctx, "u1")

	assert.ErrorIs(t, err, context.Canceled)
	api.AssertNumberOfCalls(t, "TransactWriteItems", 1)
}

func TestJitteredBackoff_Bounded(t *testing.T) {
	for attempt := 1; attempt < 20; attempt++ {
		d := jitteredBackoff(attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, backoffCap+time.Millisecond)
	}
}
