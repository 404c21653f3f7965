//go:build e2e

// Package e2e contains end-to-end integration tests using a real DynamoDB table.
// Run with: go test -tags=e2e -v ./e2e/...
package e2e

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/arbor/items"
)

// Test configuration
const (
	awsProfile = "jacent-alpha-cp"

	// Table name - unique per test run to avoid conflicts
	tablePrefix = "arbor-e2e-test"
)

var (
	testID    string
	itemTable string

	ddbClient *dynamodb.Client
	testStore *items.Store
)

// --- Test Setup & Teardown ---

func TestMain(m *testing.M) {
	// Generate unique test ID
	testID = uuid.New().String()[:8]
	itemTable = fmt.Sprintf("%s-%s-items", tablePrefix, testID)

	fmt.Printf("Test ID: %s\n", testID)
	fmt.Printf("Table: %s\n", itemTable)

	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithSharedConfigProfile(awsProfile),
	)
	if err != nil {
		fmt.Printf("Failed to load AWS config: %v\n", err)
		os.Exit(1)
	}

	ddbClient = dynamodb.NewFromConfig(cfg)

	if err := createTable(ctx); err != nil {
		fmt.Printf("Failed to create table: %v\n", err)
		os.Exit(1)
	}

	storeCfg := items.DefaultConfig()
	storeCfg.TableName = itemTable
	testStore = items.New(ddbClient, storeCfg)

	code := m.Run()

	if err := deleteTable(ctx); err != nil {
		fmt.Printf("Failed to delete table: %v\n", err)
	}

	os.Exit(code)
}

func createTable(ctx context.Context) error {
	fmt.Println("Creating test table...")

	_, err := ddbClient.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(itemTable),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("pk"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("sk"), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("pk"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("sk"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("user"), AttributeType: types.ScalarAttributeTypeS},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String("SKPK"),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("sk"), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String("pk"), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
			{
				IndexName: aws.String("USER"),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("user"), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String("sk"), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("create table %s: %w", itemTable, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(ddbClient)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(itemTable),
	}, 2*time.Minute); err != nil {
		return fmt.Errorf("wait for table %s: %w", itemTable, err)
	}

	return nil
}

func deleteTable(ctx context.Context) error {
	fmt.Println("Deleting test table...")
	_, err := ddbClient.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(itemTable),
	})
	return err
}

// --- Tests ---

func TestItemLifecycle(t *testing.T) {
	ctx := context.Background()
	owner := "e2e-user-" + testID

	created, err := testStore.Create(ctx, "note", items.CreateOptions{
		Data:  map[string]any{"text": "hi"},
		Owner: owner,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated id")
	}
	if created.ParentType != "USER" || created.ParentID != owner {
		t.Errorf("expected USER/%s parent, got %q/%q", owner, created.ParentType, created.ParentID)
	}
	if created.Meta.Version != 1 {
		t.Errorf("expected version 1, got %d", created.Meta.Version)
	}

	read, err := testStore.Read(ctx, "note", created.ID)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if read == nil {
		t.Fatal("expected note to be readable")
	}
	if data, ok := read.Data.(map[string]any); !ok || data["text"] != "hi" {
		t.Fatalf("expected note with text 'hi', got %+v", read.Data)
	}

	updated, err := testStore.Update(ctx, "note", created.ID,
		map[string]any{"text": "bye"}, items.UpdateOptions{Merge: true})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if data, ok := updated.Data.(map[string]any); !ok || data["text"] != "bye" {
		t.Errorf("expected text 'bye', got %v", updated.Data)
	}
	if updated.Meta.Version != 2 {
		t.Errorf("expected version 2, got %d", updated.Meta.Version)
	}

	if err := testStore.Delete(ctx, "note", created.ID, owner); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	gone, err := testStore.Read(ctx, "note", created.ID)
	if err != nil {
		t.Fatalf("Read after delete: %v", err)
	}
	if gone != nil {
		t.Errorf("expected item gone, got %+v", gone)
	}

	if err := testStore.Delete(ctx, "note", created.ID, owner); !errors.Is(err, items.ErrNotFound) {
		t.Errorf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestHierarchyAndPagination(t *testing.T) {
	ctx := context.Background()
	owner := "e2e-tree-" + testID
	folderID := uuid.NewString()

	if _, err := testStore.Create(ctx, "folder", items.CreateOptions{ID: folderID, Owner: owner}); err != nil {
		t.Fatalf("Create folder: %v", err)
	}

	const noteCount = 7
	for i := 0; i < noteCount; i++ {
		if _, err := testStore.Create(ctx, "note", items.CreateOptions{
			ID:         fmt.Sprintf("note-%d-%s", i, testID),
			Data:       map[string]any{"i": i},
			ParentType: "folder",
			ParentID:   folderID,
			Owner:      owner,
		}); err != nil {
			t.Fatalf("Create note %d: %v", i, err)
		}
	}
	if _, err := testStore.Create(ctx, "task", items.CreateOptions{
		ID:         "task-" + testID,
		ParentType: "folder",
		ParentID:   folderID,
		Owner:      owner,
	}); err != nil {
		t.Fatalf("Create task: %v", err)
	}

	// Type-filtered listing excludes the task.
	notes, err := testStore.ListChildren(ctx, "folder", folderID, "note", items.Page{Limit: 100})
	if err != nil {
		t.Fatalf("ListChildren note: %v", err)
	}
	if len(notes.Items) != noteCount {
		t.Errorf("expected %d notes, got %d", noteCount, len(notes.Items))
	}

	// Paginate over all children with a small page size.
	seen := map[string]bool{}
	cursor := ""
	for {
		page, err := testStore.ListChildren(ctx, "folder", folderID, items.AllTypes, items.Page{Limit: 3, Cursor: cursor})
		if err != nil {
			t.Fatalf("ListChildren page: %v", err)
		}
		for _, item := range page.Items {
			key := item.Type + "#" + item.ID
			if seen[key] {
				t.Errorf("duplicate %q across pages", key)
			}
			seen[key] = true
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}
	if len(seen) != noteCount+1 {
		t.Errorf("expected %d children enumerated, got %d", noteCount+1, len(seen))
	}

	// Owner index sees everything regardless of hierarchy position.
	mine, err := testStore.ListByOwner(ctx, owner, items.AllTypes, items.Page{Limit: 100})
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(mine.Items) != noteCount+2 {
		t.Errorf("expected %d owned items, got %d", noteCount+2, len(mine.Items))
	}
}

func TestConcurrentUpdatesKeepEveryIncrement(t *testing.T) {
	ctx := context.Background()
	owner := "e2e-conc-" + testID
	id := uuid.NewString()

	if _, err := testStore.Create(ctx, "counter", items.CreateOptions{ID: id, Owner: owner}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const writers = 5
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			_, err := testStore.Update(ctx, "counter", id,
				map[string]any{"writer": i}, items.UpdateOptions{Merge: true})
			errs <- err
		}(i)
	}
	for i := 0; i < writers; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("concurrent update: %v", err)
		}
	}

	final, err := testStore.Read(ctx, "counter", id)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if final == nil {
		t.Fatal("expected item")
	}
	// The storage-side increment must not lose any of the updates.
	if final.Meta.Version != writers+1 {
		t.Errorf("expected version %d, got %d", writers+1, final.Meta.Version)
	}
}
