package items

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// encodeCursor turns a LastEvaluatedKey into an opaque resume token:
// the key is flattened to plain values, JSON-serialized and base64-encoded.
// An empty key produces an empty cursor, which is the "scan exhausted"
// signal to callers.
func encodeCursor(lastKey map[string]types.AttributeValue) (string, error) {
	if len(lastKey) == 0 {
		return "", nil
	}

	var flat map[string]any
	if err := attributevalue.UnmarshalMap(lastKey, &flat); err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	raw, err := json.Marshal(flat)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// decodeCursor reverses encodeCursor into an ExclusiveStartKey. Any
// malformed input maps to ErrInvalidCursor; the token's internal shape is an
// implementation detail of the storage engine and is never validated against
// the query that consumes it.
func decodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	var flat map[string]any
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if len(flat) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidCursor)
	}

	key, err := attributevalue.MarshalMap(flat)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return key, nil
}
