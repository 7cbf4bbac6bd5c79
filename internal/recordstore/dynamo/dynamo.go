// Package dynamo stores monthly aggregates in a DynamoDB table keyed by
// year (partition, N) and month (sort, N).
package dynamo

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"receipts/internal/core"
)

const DefaultTable = "receipt_total"

// API is the subset of the DynamoDB client used by Store.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type Store struct {
	db    API
	table string
}

// totalItem is the item layout in the receipt_total table.
type totalItem struct {
	Year         int    `dynamodbav:"year"`
	Month        int    `dynamodbav:"month"`
	TotalAmount  int64  `dynamodbav:"total_amount"`
	ReceiptCount int    `dynamodbav:"receipt_count"`
	UpdatedAt    string `dynamodbav:"updated_at"`
}

func New(cfg aws.Config, table string) *Store {
	return NewWithAPI(dynamodb.NewFromConfig(cfg), table)
}

func NewWithAPI(api API, table string) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{db: api, table: table}
}

func (s *Store) Put(ctx context.Context, agg core.Aggregate) error {
	item, err := attributevalue.MarshalMap(totalItem{
		Year:         agg.Year,
		Month:        agg.Month,
		TotalAmount:  agg.TotalAmount,
		ReceiptCount: agg.ReceiptCount,
		UpdatedAt:    agg.UpdatedAtString(),
	})
	if err != nil {
		return fmt.Errorf("marshal aggregate: %w", err)
	}
	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb put %s: %w", agg.Period(), err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, p core.Period) (*core.Aggregate, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       periodKey(p),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get %s: %w", p, err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var item totalItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal aggregate %s: %w", p, err)
	}
	updated, err := core.ParseUpdatedAt(item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &core.Aggregate{
		Year:         item.Year,
		Month:        item.Month,
		TotalAmount:  item.TotalAmount,
		ReceiptCount: item.ReceiptCount,
		UpdatedAt:    updated,
	}, nil
}

func (s *Store) Delete(ctx context.Context, p core.Period) error {
	_, err := s.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       periodKey(p),
	})
	if err != nil {
		return fmt.Errorf("dynamodb delete %s: %w", p, err)
	}
	return nil
}

func periodKey(p core.Period) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"year":  &types.AttributeValueMemberN{Value: strconv.Itoa(p.Year)},
		"month": &types.AttributeValueMemberN{Value: strconv.Itoa(p.Month)},
	}
}
