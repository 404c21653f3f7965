package items

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/arbor/internal/compkey"
)

// DynamoAPI is the slice of the DynamoDB client used by the Store. It is
// satisfied by *dynamodb.Client and by test doubles.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Meta carries the managed bookkeeping fields of an item.
type Meta struct {
	// CreatedAt is the ISO 8601 creation timestamp.
	CreatedAt string `dynamodbav:"createdAt" json:"createdAt"`

	// UpdatedAt is the ISO 8601 last update timestamp.
	UpdatedAt string `dynamodbav:"updatedAt" json:"updatedAt"`

	// Version starts at 1 and is incremented by exactly 1 on every
	// successful update, with a storage-side atomic expression. It is an
	// optimistic-concurrency witness; the store does not condition writes
	// on it, but callers may.
	Version int64 `dynamodbav:"version" json:"version"`
}

// Item is the decoded form of a stored record.
type Item struct {
	// Type is the entity kind, stored uppercased.
	Type string `json:"type"`

	// ID is unique within Type among siblings sharing the same parent.
	ID string `json:"id"`

	// ParentType and ParentID address the owning node in the hierarchy.
	// Items created without a parent land under the synthetic user root
	// (ParentType "USER", ParentID = owner).
	ParentType string `json:"parentType"`
	ParentID   string `json:"parentId"`

	// Owner is the identity of the user who created the item.
	Owner string `json:"user"`

	// Data is the opaque payload: any JSON value, not just objects. The
	// store serializes it on write and deserializes it on read without
	// interpreting it.
	Data any `json:"data"`

	// Meta holds timestamps and the version counter.
	Meta Meta `json:"meta"`
}

// record is the raw attribute layout of the item table.
type record struct {
	PK   string `dynamodbav:"pk"`
	SK   string `dynamodbav:"sk"`
	Data string `dynamodbav:"data"`
	Meta Meta   `dynamodbav:"meta"`
	User string `dynamodbav:"user"`
}

// decode converts a record into its Item form. Type and id come from the
// sort key, parent fields from the partition key, mirroring the encode path.
func (r *record) decode() (*Item, error) {
	item := &Item{
		Owner: r.User,
		Meta:  r.Meta,
		Data:  map[string]any{},
	}
	item.ParentType, item.ParentID = compkey.Parse(r.PK)
	item.Type, item.ID = compkey.Parse(r.SK)

	if r.Data != "" {
		var data any
		if err := json.Unmarshal([]byte(r.Data), &data); err != nil {
			return nil, fmt.Errorf("decode item data: %w", err)
		}
		item.Data = data
	}
	return item, nil
}

// key returns the table key pair for this record.
func (r *record) key() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: r.PK},
		"sk": &types.AttributeValueMemberS{Value: r.SK},
	}
}

// unmarshalRecord converts raw DynamoDB attributes into a record.
func unmarshalRecord(raw map[string]types.AttributeValue) (*record, error) {
	var rec record
	if err := attributevalue.UnmarshalMap(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &rec, nil
}
