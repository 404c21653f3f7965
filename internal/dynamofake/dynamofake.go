// Package dynamofake is an in-memory stand-in for the DynamoDB client,
// covering the point-write and indexed range-query capability the item store
// relies on. It understands the single-table layout (pk, sk, user) and its
// two secondary indexes, enough to run the store against real query shapes
// without a network.
package dynamofake

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DB is an in-memory single-table DynamoDB fake.
type DB struct {
	// IdentityIndex and OwnerIndex name the GSIs recognized by Query.
	IdentityIndex string
	OwnerIndex    string

	// Err, when set, is returned by every operation. Used to simulate
	// transient storage faults.
	Err error

	mu   sync.Mutex
	rows map[string]map[string]types.AttributeValue
}

// New creates an empty fake with the default index names.
func New() *DB {
	return &DB{
		IdentityIndex: "SKPK",
		OwnerIndex:    "USER",
		rows:          map[string]map[string]types.AttributeValue{},
	}
}

// Len reports the number of stored rows.
func (db *DB) Len() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.rows)
}

func rowKey(pk, sk string) string {
	return pk + "\x00" + sk
}

func strAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

// PutItem stores a row, honoring attribute_not_exists conditions.
func (db *DB) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if db.Err != nil {
		return nil, db.Err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	key := rowKey(strAttr(params.Item, "pk"), strAttr(params.Item, "sk"))
	if params.ConditionExpression != nil && strings.Contains(*params.ConditionExpression, "attribute_not_exists") {
		if _, occupied := db.rows[key]; occupied {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
		}
	}
	db.rows[key] = copyRow(params.Item)
	return &dynamodb.PutItemOutput{}, nil
}

// UpdateItem applies the store's data/meta update expression.
func (db *DB) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if db.Err != nil {
		return nil, db.Err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	key := rowKey(strAttr(params.Key, "pk"), strAttr(params.Key, "sk"))
	row, ok := db.rows[key]
	if !ok {
		if params.ConditionExpression != nil {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
		}
		row = copyRow(params.Key)
		db.rows[key] = row
	}

	expr := aws.ToString(params.UpdateExpression)
	if expr != "SET #data = :data, #meta.#updatedAt = :updatedAt, #meta.#version = #meta.#version + :one" {
		return nil, fmt.Errorf("dynamofake: unsupported update expression %q", expr)
	}

	row["data"] = params.ExpressionAttributeValues[":data"]

	meta, ok := row["meta"].(*types.AttributeValueMemberM)
	if !ok {
		return nil, fmt.Errorf("dynamofake: row %q has no meta map", key)
	}
	newMeta := map[string]types.AttributeValue{}
	for k, v := range meta.Value {
		newMeta[k] = v
	}
	newMeta["updatedAt"] = params.ExpressionAttributeValues[":updatedAt"]

	version := int64(0)
	if v, ok := newMeta["version"].(*types.AttributeValueMemberN); ok {
		version, _ = strconv.ParseInt(v.Value, 10, 64)
	}
	newMeta["version"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(version+1, 10)}
	row["meta"] = &types.AttributeValueMemberM{Value: newMeta}

	out := &dynamodb.UpdateItemOutput{}
	if params.ReturnValues == types.ReturnValueAllNew {
		out.Attributes = copyRow(row)
	}
	return out, nil
}

// DeleteItem removes a row. Deleting an absent key is not an error.
func (db *DB) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if db.Err != nil {
		return nil, db.Err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	delete(db.rows, rowKey(strAttr(params.Key, "pk"), strAttr(params.Key, "sk")))
	return &dynamodb.DeleteItemOutput{}, nil
}

// Query executes exact-match and begins_with key conditions over the base
// table or one of the two indexes, with Limit, ExclusiveStartKey and
// LastEvaluatedKey semantics.
func (db *DB) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if db.Err != nil {
		return nil, db.Err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	hashAttr, rangeAttr := "pk", "sk"
	switch aws.ToString(params.IndexName) {
	case "":
	case db.IdentityIndex:
		hashAttr, rangeAttr = "sk", "pk"
	case db.OwnerIndex:
		hashAttr, rangeAttr = "user", "sk"
	default:
		return nil, fmt.Errorf("dynamofake: unknown index %q", *params.IndexName)
	}

	hashValue, prefix, err := parseKeyCondition(aws.ToString(params.KeyConditionExpression), params.ExpressionAttributeNames, params.ExpressionAttributeValues, hashAttr)
	if err != nil {
		return nil, err
	}

	var matched []map[string]types.AttributeValue
	for _, row := range db.rows {
		if strAttr(row, hashAttr) != hashValue {
			continue
		}
		if prefix != "" && !strings.HasPrefix(strAttr(row, "sk"), prefix) {
			continue
		}
		matched = append(matched, row)
	}
	sort.Slice(matched, func(i, j int) bool {
		a := strAttr(matched[i], rangeAttr)
		b := strAttr(matched[j], rangeAttr)
		if a != b {
			return a < b
		}
		return rowKey(strAttr(matched[i], "pk"), strAttr(matched[i], "sk")) <
			rowKey(strAttr(matched[j], "pk"), strAttr(matched[j], "sk"))
	})

	start := 0
	if params.ExclusiveStartKey != nil {
		after := rowKey(strAttr(params.ExclusiveStartKey, "pk"), strAttr(params.ExclusiveStartKey, "sk"))
		start = len(matched)
		for i, row := range matched {
			if rowKey(strAttr(row, "pk"), strAttr(row, "sk")) == after {
				start = i + 1
				break
			}
		}
	}
	matched = matched[start:]

	out := &dynamodb.QueryOutput{}
	limit := len(matched)
	if params.Limit != nil && int(*params.Limit) < limit {
		limit = int(*params.Limit)
	}
	for _, row := range matched[:limit] {
		out.Items = append(out.Items, copyRow(row))
	}

	// A page that consumed the remainder exactly still reports a resume
	// position, like the real engine does when Limit is hit.
	if limit < len(matched) || (limit > 0 && params.Limit != nil && limit == int(*params.Limit) && limit == len(matched)) {
		last := matched[limit-1]
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"pk": last["pk"],
			"sk": last["sk"],
		}
		if hashAttr == "user" {
			out.LastEvaluatedKey["user"] = last["user"]
		}
	}
	return out, nil
}

// parseKeyCondition understands the two condition shapes the store builds:
// hash equality, optionally AND begins_with(sk, :prefix).
func parseKeyCondition(expr string, names map[string]string, values map[string]types.AttributeValue, hashAttr string) (hashValue, prefix string, err error) {
	clauses := strings.Split(expr, " AND ")
	if len(clauses) == 0 || len(clauses) > 2 {
		return "", "", fmt.Errorf("dynamofake: unsupported key condition %q", expr)
	}

	name, placeholder, ok := strings.Cut(clauses[0], " = ")
	if !ok {
		return "", "", fmt.Errorf("dynamofake: unsupported key condition %q", expr)
	}
	if resolved, aliased := names[name]; aliased {
		name = resolved
	}
	if name != hashAttr {
		return "", "", fmt.Errorf("dynamofake: condition attribute %q does not match index hash key %q", name, hashAttr)
	}
	v, ok := values[placeholder].(*types.AttributeValueMemberS)
	if !ok {
		return "", "", fmt.Errorf("dynamofake: missing value %q", placeholder)
	}
	hashValue = v.Value

	if len(clauses) == 2 {
		inner := strings.TrimSuffix(strings.TrimPrefix(clauses[1], "begins_with("), ")")
		attr, placeholder, ok := strings.Cut(inner, ", ")
		if !ok || attr != "sk" {
			return "", "", fmt.Errorf("dynamofake: unsupported range condition %q", clauses[1])
		}
		p, ok := values[placeholder].(*types.AttributeValueMemberS)
		if !ok {
			return "", "", fmt.Errorf("dynamofake: missing value %q", placeholder)
		}
		prefix = p.Value
	}
	return hashValue, prefix, nil
}

func copyRow(row map[string]types.AttributeValue) map[string]types.AttributeValue {
	dup := make(map[string]types.AttributeValue, len(row))
	for k, v := range row {
		dup[k] = v
	}
	return dup
}
