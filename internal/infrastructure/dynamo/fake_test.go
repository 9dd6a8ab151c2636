package dynamo

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type fakeItem = map[string]types.AttributeValue

// fakeDynamo is an in-process DynamoDB that enforces the condition and
// update expressions the repos issue. One mutex covers every call, so each
// single-item write and each transaction is atomic, as in the real service.
//
// Conditions are disjunctions of conjunctions over attribute_exists,
// attribute_not_exists, = and >. Updates are SET lists of :value or
// if_not_exists(#name, :value).
type fakeDynamo struct {
	mu     sync.Mutex
	keys   map[string][]string
	tables map[string]map[string]fakeItem
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{
		keys: map[string][]string{
			"scan_tokens":      {fieldCode},
			"device_bindings":  {fieldUserID},
			"attendance_heads": {fieldUserID},
			"attendance_logs":  {fieldUserID, fieldSeq},
		},
		tables: make(map[string]map[string]fakeItem),
	}
}

// rows returns a copy of every item in table.
func (f *fakeDynamo) rows(table string) []fakeItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakeItem, 0, len(f.tables[table]))
	for _, it := range f.tables[table] {
		out = append(out, clone(it))
	}
	return out
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, err := f.lookup(aws.ToString(in.TableName), in.Key)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: clone(cur)}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table := aws.ToString(in.TableName)
	cur, err := f.lookup(table, in.Item)
	if err != nil {
		return nil, err
	}
	ok, err := evalCondition(aws.ToString(in.ConditionExpression), cur, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	f.store(table, clone(in.Item))
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table := aws.ToString(in.TableName)
	cur, err := f.lookup(table, in.Key)
	if err != nil {
		return nil, err
	}
	ok, err := evalCondition(aws.ToString(in.ConditionExpression), cur, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	next, err := applyUpdate(aws.ToString(in.UpdateExpression), cur, in.Key, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	f.store(table, next)
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table := aws.ToString(in.TableName)
	cur, err := f.lookup(table, in.Key)
	if err != nil {
		return nil, err
	}
	ok, err := evalCondition(aws.ToString(in.ConditionExpression), cur, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	if cur != nil {
		k, _ := f.keyOf(table, in.Key)
		delete(f.tables[table], k)
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

// TransactWriteItems checks every condition before applying any write. A
// failed check cancels the whole transaction with per-item reasons.
func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	type write struct {
		table string
		next  fakeItem
	}
	writes := make([]write, 0, len(in.TransactItems))
	reasons := make([]types.CancellationReason, len(in.TransactItems))
	cancelled := false

	for i, ti := range in.TransactItems {
		var (
			table, cond string
			key         fakeItem
			names       map[string]string
			values      fakeItem
		)
		switch {
		case ti.Put != nil:
			table, cond, key = aws.ToString(ti.Put.TableName), aws.ToString(ti.Put.ConditionExpression), ti.Put.Item
			names, values = ti.Put.ExpressionAttributeNames, ti.Put.ExpressionAttributeValues
		case ti.Update != nil:
			table, cond, key = aws.ToString(ti.Update.TableName), aws.ToString(ti.Update.ConditionExpression), ti.Update.Key
			names, values = ti.Update.ExpressionAttributeNames, ti.Update.ExpressionAttributeValues
		default:
			return nil, fmt.Errorf("fake dynamo: unsupported transact item %d", i)
		}
		cur, err := f.lookup(table, key)
		if err != nil {
			return nil, err
		}
		ok, err := evalCondition(cond, cur, names, values)
		if err != nil {
			return nil, err
		}
		reasons[i].Code = aws.String("None")
		if !ok {
			reasons[i].Code = aws.String("ConditionalCheckFailed")
			cancelled = true
			continue
		}
		if ti.Put != nil {
			writes = append(writes, write{table, clone(ti.Put.Item)})
			continue
		}
		next, err := applyUpdate(aws.ToString(ti.Update.UpdateExpression), cur, key, names, values)
		if err != nil {
			return nil, err
		}
		writes = append(writes, write{table, next})
	}
	if cancelled {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}
	for _, w := range writes {
		f.store(w.table, w.next)
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) keyOf(table string, it fakeItem) (string, error) {
	attrs, ok := f.keys[table]
	if !ok {
		return "", &types.ResourceNotFoundException{Message: aws.String("no table " + table)}
	}
	parts := make([]string, 0, len(attrs))
	for _, a := range attrs {
		v, ok := scalar(it[a])
		if !ok {
			return "", fmt.Errorf("fake dynamo: %s is missing key attribute %s", table, a)
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, "\x00"), nil
}

func (f *fakeDynamo) lookup(table string, key fakeItem) (fakeItem, error) {
	k, err := f.keyOf(table, key)
	if err != nil {
		return nil, err
	}
	return f.tables[table][k], nil
}

func (f *fakeDynamo) store(table string, it fakeItem) {
	k, err := f.keyOf(table, it)
	if err != nil {
		panic(err)
	}
	if f.tables[table] == nil {
		f.tables[table] = make(map[string]fakeItem)
	}
	f.tables[table][k] = it
}

func clone(it fakeItem) fakeItem {
	if it == nil {
		return nil
	}
	out := make(fakeItem, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

func scalar(av types.AttributeValue) (string, bool) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value, true
	case *types.AttributeValueMemberN:
		return v.Value, true
	default:
		return "", false
	}
}

var (
	existsRe  = regexp.MustCompile(`^(attribute_exists|attribute_not_exists)\((#\w+)\)$`)
	compareRe = regexp.MustCompile(`^(#\w+)\s*(=|>)\s*(:\w+)$`)
	setRe     = regexp.MustCompile(`(#\w+)\s*=\s*(?:if_not_exists\((#\w+),\s*(:\w+)\)|(:\w+))`)
)

func evalCondition(expr string, cur fakeItem, names map[string]string, values fakeItem) (bool, error) {
	if expr == "" {
		return true, nil
	}
	for _, disjunct := range strings.Split(expr, " OR ") {
		all := true
		for _, clause := range strings.Split(disjunct, " AND ") {
			ok, err := evalClause(strings.TrimSpace(clause), cur, names, values)
			if err != nil {
				return false, err
			}
			if !ok {
				all = false
				break
			}
		}
		if all {
			return true, nil
		}
	}
	return false, nil
}

func evalClause(clause string, cur fakeItem, names map[string]string, values fakeItem) (bool, error) {
	if m := existsRe.FindStringSubmatch(clause); m != nil {
		_, present := cur[names[m[2]]]
		return present == (m[1] == "attribute_exists"), nil
	}
	m := compareRe.FindStringSubmatch(clause)
	if m == nil {
		return false, fmt.Errorf("fake dynamo: unsupported condition %q", clause)
	}
	have, ok := cur[names[m[1]]]
	if !ok {
		return false, nil
	}
	want, ok := values[m[3]]
	if !ok {
		return false, fmt.Errorf("fake dynamo: missing value %s", m[3])
	}
	if m[2] == "=" {
		a, _ := scalar(have)
		b, _ := scalar(want)
		return a == b, nil
	}
	hn, hok := have.(*types.AttributeValueMemberN)
	wn, wok := want.(*types.AttributeValueMemberN)
	if !hok || !wok {
		return false, fmt.Errorf("fake dynamo: > needs numbers in %q", clause)
	}
	a, err := strconv.ParseInt(hn.Value, 10, 64)
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseInt(wn.Value, 10, 64)
	if err != nil {
		return false, err
	}
	return a > b, nil
}

func applyUpdate(expr string, cur, key fakeItem, names map[string]string, values fakeItem) (fakeItem, error) {
	if !strings.HasPrefix(expr, "SET ") {
		return nil, fmt.Errorf("fake dynamo: unsupported update %q", expr)
	}
	next := clone(cur)
	if next == nil {
		next = clone(key)
	}
	for _, m := range setRe.FindAllStringSubmatch(expr, -1) {
		target := names[m[1]]
		if m[2] != "" {
			if _, exists := cur[names[m[2]]]; exists {
				continue
			}
			next[target] = values[m[3]]
			continue
		}
		next[target] = values[m[4]]
	}
	return next, nil
}
