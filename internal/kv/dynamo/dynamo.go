// Package dynamo implements kv.Store on a single DynamoDB table keyed by PK (hash) and SK (range).
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/fuelsync/fuelsync/internal/kv"
)

// TxLimit is the DynamoDB limit on items per TransactWriteItems call.
const TxLimit = 100

const (
	maxBatchAttempts = 5
	batchBackoff     = 50 * time.Millisecond
)

// Client is the subset of the DynamoDB API the store uses.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

var _ Client = (*dynamodb.Client)(nil)

var (
	_ kv.Store     = (*Store)(nil)
	_ kv.TxDeleter = (*Store)(nil)
	_ kv.Pinger    = (*Store)(nil)
)

// Store is a DynamoDB-backed kv.Store.
type Store struct {
	client Client
	table  string
}

// New creates a Store over table.
func New(client Client, table string) *Store {
	return &Store{client: client, table: table}
}

// EnsureTable creates the table if it does not exist. Intended for local endpoints.
func (s *Store) EnsureTable(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err == nil {
		return nil
	}
	var rnfe *ddbtypes.ResourceNotFoundException
	if !errors.As(err, &rnfe) {
		return fmt.Errorf("failed to describe table %s: %w", s.table, err)
	}

	_, err = s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(s.table),
		BillingMode: ddbtypes.BillingModePayPerRequest,
		AttributeDefinitions: []ddbtypes.AttributeDefinition{
			{AttributeName: aws.String(kv.AttrPK), AttributeType: ddbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String(kv.AttrSK), AttributeType: ddbtypes.ScalarAttributeTypeS},
		},
		KeySchema: []ddbtypes.KeySchemaElement{
			{AttributeName: aws.String(kv.AttrPK), KeyType: ddbtypes.KeyTypeHash},
			{AttributeName: aws.String(kv.AttrSK), KeyType: ddbtypes.KeyTypeRange},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}, 2*time.Minute); err != nil {
		return fmt.Errorf("failed waiting for table %s: %w", s.table, err)
	}
	return nil
}

// Ping implements kv.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	return err
}

// Get implements kv.Store.
func (s *Store) Get(ctx context.Context, key kv.Key) (kv.Item, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            keyAttrs(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, kv.ErrNotFound
	}
	return decodeItem(out.Item)
}

// Put implements kv.Store.
func (s *Store) Put(ctx context.Context, item kv.Item, cond kv.Condition) error {
	if _, err := item.Key(); err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(map[string]any(item))
	if err != nil {
		return fmt.Errorf("failed to encode item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                av,
		ConditionExpression: conditionExpr(cond),
	})
	return mapWriteError(err, "put")
}

// Update implements kv.Store.
func (s *Store) Update(ctx context.Context, key kv.Key, set map[string]any, cond kv.Condition) (kv.Item, error) {
	names := make([]string, 0, len(set))
	for name := range set {
		if name == kv.AttrPK || name == kv.AttrSK {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		item, err := s.Get(ctx, key)
		if errors.Is(err, kv.ErrNotFound) && cond == kv.MustExist {
			return nil, kv.ErrConditionFailed
		}
		return item, err
	}
	sort.Strings(names)

	exprNames := make(map[string]string, len(names))
	exprValues := make(map[string]ddbtypes.AttributeValue, len(names))
	expr := "SET "
	for i, name := range names {
		n, v := "#a"+strconv.Itoa(i), ":v"+strconv.Itoa(i)
		av, err := attributevalue.Marshal(set[name])
		if err != nil {
			return nil, fmt.Errorf("failed to encode attribute %s: %w", name, err)
		}
		exprNames[n] = name
		exprValues[v] = av
		if i > 0 {
			expr += ", "
		}
		expr += n + " = " + v
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       keyAttrs(key),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       conditionExpr(cond),
		ExpressionAttributeNames:  exprNames,
		ExpressionAttributeValues: exprValues,
		ReturnValues:              ddbtypes.ReturnValueAllNew,
	})
	if err := mapWriteError(err, "update"); err != nil {
		return nil, err
	}
	return decodeItem(out.Attributes)
}

// Delete implements kv.Store.
func (s *Store) Delete(ctx context.Context, key kv.Key, cond kv.Condition) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.table),
		Key:                 keyAttrs(key),
		ConditionExpression: conditionExpr(cond),
	})
	return mapWriteError(err, "delete")
}

// Query implements kv.Store.
func (s *Store) Query(ctx context.Context, q kv.Query) (kv.Page, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk": &ddbtypes.AttributeValueMemberS{Value: q.Partition},
		},
		ScanIndexForward: aws.Bool(!q.Reverse),
		ConsistentRead:   aws.Bool(true),
	}
	if q.Prefix != "" {
		input.KeyConditionExpression = aws.String("PK = :pk AND begins_with(SK, :prefix)")
		input.ExpressionAttributeValues[":prefix"] = &ddbtypes.AttributeValueMemberS{Value: q.Prefix}
	}
	if q.Limit > 0 {
		input.Limit = aws.Int32(int32(q.Limit))
	}
	if len(q.After) > 0 {
		start := make(map[string]ddbtypes.AttributeValue, len(q.After))
		for name, value := range q.After {
			start[name] = &ddbtypes.AttributeValueMemberS{Value: value}
		}
		input.ExclusiveStartKey = start
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return kv.Page{}, fmt.Errorf("failed to query: %w", err)
	}

	page := kv.Page{Items: make([]kv.Item, 0, len(out.Items))}
	for _, raw := range out.Items {
		item, err := decodeItem(raw)
		if err != nil {
			return kv.Page{}, err
		}
		page.Items = append(page.Items, item)
	}
	if len(out.LastEvaluatedKey) > 0 {
		page.Next = make(kv.Marker, len(out.LastEvaluatedKey))
		for name, value := range out.LastEvaluatedKey {
			var str string
			if err := attributevalue.Unmarshal(value, &str); err != nil {
				return kv.Page{}, fmt.Errorf("failed to decode marker: %w", err)
			}
			page.Next[name] = str
		}
	}
	return page, nil
}

// BatchDelete implements kv.Store. Unprocessed keys are retried with backoff.
func (s *Store) BatchDelete(ctx context.Context, keys []kv.Key) error {
	if len(keys) > kv.MaxBatchSize {
		return fmt.Errorf("%w: %d keys, limit %d", kv.ErrBatchTooLarge, len(keys), kv.MaxBatchSize)
	}
	if len(keys) == 0 {
		return nil
	}

	requests := make([]ddbtypes.WriteRequest, 0, len(keys))
	for _, key := range keys {
		requests = append(requests, ddbtypes.WriteRequest{
			DeleteRequest: &ddbtypes.DeleteRequest{Key: keyAttrs(key)},
		})
	}
	pending := map[string][]ddbtypes.WriteRequest{s.table: requests}

	for attempt := 1; ; attempt++ {
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("failed to batch delete: %w", err)
		}
		if len(out.UnprocessedItems[s.table]) == 0 {
			return nil
		}
		if attempt >= maxBatchAttempts {
			return fmt.Errorf("failed to batch delete: %d keys unprocessed after %d attempts",
				len(out.UnprocessedItems[s.table]), attempt)
		}
		pending = out.UnprocessedItems

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(batchBackoff * time.Duration(1<<(attempt-1))):
		}
	}
}

// TxLimit implements kv.TxDeleter.
func (s *Store) TxLimit() int {
	return TxLimit
}

// DeleteTx implements kv.TxDeleter.
func (s *Store) DeleteTx(ctx context.Context, parent kv.Key, children []kv.Key) error {
	if 1+len(children) > TxLimit {
		return fmt.Errorf("%w: %d items, limit %d", kv.ErrBatchTooLarge, 1+len(children), TxLimit)
	}

	items := make([]ddbtypes.TransactWriteItem, 0, 1+len(children))
	items = append(items, ddbtypes.TransactWriteItem{
		Delete: &ddbtypes.Delete{
			TableName:           aws.String(s.table),
			Key:                 keyAttrs(parent),
			ConditionExpression: conditionExpr(kv.MustExist),
		},
	})
	for _, key := range children {
		items = append(items, ddbtypes.TransactWriteItem{
			Delete: &ddbtypes.Delete{TableName: aws.String(s.table), Key: keyAttrs(key)},
		})
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	var canceled *ddbtypes.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return kv.ErrConditionFailed
			}
		}
	}
	if err != nil {
		return fmt.Errorf("failed to delete in transaction: %w", err)
	}
	return nil
}

func keyAttrs(key kv.Key) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		kv.AttrPK: &ddbtypes.AttributeValueMemberS{Value: key.PK},
		kv.AttrSK: &ddbtypes.AttributeValueMemberS{Value: key.SK},
	}
}

func conditionExpr(cond kv.Condition) *string {
	switch cond {
	case kv.MustExist:
		return aws.String("attribute_exists(PK)")
	case kv.MustNotExist:
		return aws.String("attribute_not_exists(PK)")
	default:
		return nil
	}
}

func mapWriteError(err error, op string) error {
	if err == nil {
		return nil
	}
	var ccf *ddbtypes.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return kv.ErrConditionFailed
	}
	return fmt.Errorf("failed to %s item: %w", op, err)
}

func decodeItem(av map[string]ddbtypes.AttributeValue) (kv.Item, error) {
	var item map[string]any
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, fmt.Errorf("failed to decode item: %w", err)
	}
	return kv.Item(item), nil
}
