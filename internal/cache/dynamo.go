package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	pkPrefix = "ENTITY#"
	skImage  = "IMAGE"
)

// DynamoAPI is the subset of *dynamodb.Client the store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoStore keeps one item per entity (PK=ENTITY#type#id, SK=IMAGE). Items
// carry an expiresAt TTL attribute so DynamoDB evicts entries past maxAge.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore creates a store for tableName. ttl sets expiresAt; zero
// uses DefaultMaxAge.
func NewDynamoStore(client DynamoAPI, tableName string, ttl time.Duration) *DynamoStore {
	if ttl <= 0 {
		ttl = DefaultMaxAge
	}
	return &DynamoStore{client: client, tableName: tableName, ttl: ttl, now: time.Now}
}

func partitionKey(key Key) string {
	return pkPrefix + key.Type + "#" + key.ID
}

func entityKey(key Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: partitionKey(key)},
		"SK": &types.AttributeValueMemberS{Value: skImage},
	}
}

// Lookup reads with ConsistentRead so a Put is visible immediately.
func (s *DynamoStore) Lookup(ctx context.Context, key Key) (*Entry, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		Key:            entityKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem PK=%s: %w", partitionKey(key), err)
	}
	if result.Item == nil {
		return nil, nil
	}
	var e Entry
	if err := attributevalue.UnmarshalMap(result.Item, &e); err != nil {
		return nil, fmt.Errorf("unmarshal entry %s: %w", key, err)
	}
	return &e, nil
}

// Put replaces the item for key.
func (s *DynamoStore) Put(ctx context.Context, key Key, in PutInput) (*Entry, error) {
	e := newEntry(key, in, s.now())
	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return nil, fmt.Errorf("marshal entry: %w", err)
	}
	for k, v := range entityKey(key) {
		item[k] = v
	}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(e.CreatedAt.Add(s.ttl).Unix(), 10)}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}); err != nil {
		return nil, fmt.Errorf("PutItem PK=%s: %w", partitionKey(key), err)
	}
	return e, nil
}
