package items

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/arbor/internal/compkey"
)

// AllTypes is the sentinel type filter meaning "no type filter" in list
// operations. An empty type is treated the same way.
const AllTypes = "all"

// AnonymousOwner is the owner recorded for requests without an
// authenticated user. Items still land under its synthetic root, so the
// no-orphan guarantee holds even for unauthenticated writes.
const AnonymousOwner = "not-logged-in"

// Store provides CRUD and list operations over the hierarchical item table.
type Store struct {
	client DynamoAPI
	config Config
}

// New creates a new Store instance.
func New(client DynamoAPI, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
	}
}

// CreateOptions carries the optional inputs of Create.
type CreateOptions struct {
	// ID is generated (random, collision-resistant) when empty.
	ID string

	// Data is the opaque payload: any JSON value, not just objects.
	// nil is stored as an empty object.
	Data any

	// ParentType and ParentID place the item in the hierarchy. Unless both
	// are set, the item is parented to the owner's synthetic user root.
	ParentType string
	ParentID   string

	// Owner is the creating user; defaults to AnonymousOwner.
	Owner string
}

// UpdateOptions configures Update behavior.
type UpdateOptions struct {
	// Merge overlays the new data onto the stored data one level deep:
	// new keys overwrite, other stored keys are retained. When false the
	// stored data is replaced wholesale.
	Merge bool
}

// Page carries pagination inputs for list operations.
type Page struct {
	// Limit is the maximum number of items per page (0 = config default).
	Limit int32

	// Cursor resumes a prior scan. It is opaque and only valid for the
	// query shape that produced it.
	Cursor string
}

// List is a page of decoded items. Cursor is set only when more results
// remain; its absence means the scan is exhausted, not that the result set
// was empty.
type List struct {
	Items  []*Item `json:"items"`
	Cursor string  `json:"nextCursor,omitempty"`
}

// Create persists a new item and returns it in decoded form. The key pair
// must be unoccupied; a collision fails with ErrAlreadyExists.
func (s *Store) Create(ctx context.Context, typ string, opts CreateOptions) (*Item, error) {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	owner := opts.Owner
	if owner == "" {
		owner = AnonymousOwner
	}
	parentType, parentID := opts.ParentType, opts.ParentID
	if parentType == "" || parentID == "" {
		parentType = "user"
		parentID = owner
	}

	pk := compkey.PartitionKey(typ, id, parentType, parentID, owner)
	sk := compkey.SortKey(typ, id, pk)

	data := opts.Data
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal item data: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	rec := record{
		PK:   pk,
		SK:   sk,
		Data: string(raw),
		Meta: Meta{
			CreatedAt: now,
			UpdatedAt: now,
			Version:   1,
		},
		User: owner,
	}

	attrs, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.config.TableName),
		Item:                attrs,
		ConditionExpression: aws.String("attribute_not_exists(pk) AND attribute_not_exists(sk)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, ErrAlreadyExists
		}
		return nil, classifyStorageError(err)
	}

	return rec.decode()
}

// Read resolves an item by type and id through the identity index, without
// knowing its parent. A miss returns (nil, nil); absence is a normal outcome
// here, not an error.
func (s *Store) Read(ctx context.Context, typ, id string) (*Item, error) {
	rec, err := s.lookup(ctx, typ, id)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.decode()
}

// Update rewrites an item's data and bumps its meta in one atomic storage
// operation. The version increment happens server-side, so concurrent
// updates never lose increments. Fails with ErrNotFound when the item does
// not exist, or vanished between the resolving read and the write.
func (s *Store) Update(ctx context.Context, typ, id string, data any, opts UpdateOptions) (*Item, error) {
	rec, err := s.lookup(ctx, typ, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}

	if data == nil {
		data = map[string]any{}
	}
	// Merge applies only when both sides are objects; a non-object payload
	// on either side replaces wholesale.
	if overlay, ok := data.(map[string]any); ok && opts.Merge {
		merged := map[string]any{}
		if rec.Data != "" {
			var stored any
			if err := json.Unmarshal([]byte(rec.Data), &stored); err != nil {
				return nil, fmt.Errorf("decode stored data: %w", err)
			}
			if prev, ok := stored.(map[string]any); ok {
				for k, v := range prev {
					merged[k] = v
				}
			}
		}
		// Shallow overlay only: nested objects are replaced, not merged.
		for k, v := range overlay {
			merged[k] = v
		}
		data = merged
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal item data: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.config.TableName),
		Key:                 rec.key(),
		UpdateExpression:    aws.String("SET #data = :data, #meta.#updatedAt = :updatedAt, #meta.#version = #meta.#version + :one"),
		ConditionExpression: aws.String("attribute_exists(pk)"),
		ExpressionAttributeNames: map[string]string{
			"#data":      "data",
			"#meta":      "meta",
			"#updatedAt": "updatedAt",
			"#version":   "version",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":data":      &types.AttributeValueMemberS{Value: string(raw)},
			":updatedAt": &types.AttributeValueMemberS{Value: now},
			":one":       &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			// Deleted between the read and the write. Accepted race.
			return nil, ErrNotFound
		}
		return nil, classifyStorageError(err)
	}

	updated, err := unmarshalRecord(out.Attributes)
	if err != nil {
		return nil, err
	}
	return updated.decode()
}

// Delete removes an item by type and id. The resolving read supplies the key
// pair the caller doesn't have; owner is only needed when the stored record
// cannot yield its own parent fields. Deletes do not cascade: children of a
// deleted parent remain, reachable through the identity index only.
func (s *Store) Delete(ctx context.Context, typ, id, owner string) error {
	rec, err := s.lookup(ctx, typ, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrNotFound
	}

	pk := rec.PK
	sk := rec.SK
	if pk == "" {
		pk = compkey.PartitionKey(typ, id, "", "", owner)
		sk = compkey.SortKey(typ, id, pk)
	}

	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.config.TableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: pk},
			"sk": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return classifyStorageError(err)
	}
	return nil
}

// ListChildren returns one page of the children of a parent node, optionally
// narrowed to a child type. Passing AllTypes (or "") as childType lists all
// children regardless of type.
func (s *Store) ListChildren(ctx context.Context, parentType, parentID, childType string, page Page) (*List, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.config.TableName),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{
				Value: compkey.PartitionKey("", "", parentType, parentID, ""),
			},
		},
	}
	if prefix, ok := typePrefix(childType); ok {
		input.KeyConditionExpression = aws.String("pk = :pk AND begins_with(sk, :sk)")
		input.ExpressionAttributeValues[":sk"] = &types.AttributeValueMemberS{Value: prefix}
	}

	return s.list(ctx, input, page)
}

// ListByOwner returns one page of the items owned by a user, optionally
// narrowed to a type, using the owner index. Hierarchy position is
// irrelevant to this access path.
func (s *Store) ListByOwner(ctx context.Context, owner, typ string, page Page) (*List, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.config.TableName),
		IndexName:              aws.String(s.config.OwnerIndex),
		KeyConditionExpression: aws.String("#user = :user"),
		ExpressionAttributeNames: map[string]string{
			"#user": "user",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":user": &types.AttributeValueMemberS{Value: owner},
		},
	}
	if prefix, ok := typePrefix(typ); ok {
		input.KeyConditionExpression = aws.String("#user = :user AND begins_with(sk, :sk)")
		input.ExpressionAttributeValues[":sk"] = &types.AttributeValueMemberS{Value: prefix}
	}

	return s.list(ctx, input, page)
}

// lookup resolves an item's full record, including its key pair, from
// type+id alone via the identity index. The sort key is computed with no
// partition-key context, so it is always the non-collapsed TYPE#id form;
// the collapse only ever applies at write time. Returns nil without error
// on a miss.
func (s *Store) lookup(ctx context.Context, typ, id string) (*record, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.TableName),
		IndexName:              aws.String(s.config.IdentityIndex),
		KeyConditionExpression: aws.String("sk = :sk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sk": &types.AttributeValueMemberS{
				Value: compkey.SortKey(typ, id, ""),
			},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, classifyStorageError(err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	return unmarshalRecord(out.Items[0])
}

// list finishes a range query: applies limit and cursor, executes, decodes
// the page and encodes the continuation cursor when the scan is unfinished.
func (s *Store) list(ctx context.Context, input *dynamodb.QueryInput, page Page) (*List, error) {
	limit := page.Limit
	if limit < 1 {
		limit = s.config.DefaultLimit
	}
	input.Limit = aws.Int32(limit)

	if page.Cursor != "" {
		startKey, err := decodeCursor(page.Cursor)
		if err != nil {
			return nil, err
		}
		input.ExclusiveStartKey = startKey
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, classifyStorageError(err)
	}

	result := &List{Items: make([]*Item, 0, len(out.Items))}
	for _, raw := range out.Items {
		rec, err := unmarshalRecord(raw)
		if err != nil {
			return nil, err
		}
		item, err := rec.decode()
		if err != nil {
			return nil, err
		}
		result.Items = append(result.Items, item)
	}

	cursor, err := encodeCursor(out.LastEvaluatedKey)
	if err != nil {
		return nil, err
	}
	result.Cursor = cursor

	return result, nil
}

// typePrefix returns the uppercased sort-key prefix for a type filter, and
// whether a filter applies at all.
func typePrefix(typ string) (string, bool) {
	if typ == "" || typ == AllTypes {
		return "", false
	}
	return compkey.SortKey(typ, "", ""), true
}

// classifyStorageError maps transient DynamoDB faults to
// ErrUpstreamUnavailable so callers can retry them. Everything else passes
// through untouched.
func classifyStorageError(err error) error {
	var (
		throughput *types.ProvisionedThroughputExceededException
		reqLimit   *types.RequestLimitExceeded
		internal   *types.InternalServerError
	)
	if errors.As(err, &throughput) || errors.As(err, &reqLimit) || errors.As(err, &internal) {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return err
}
