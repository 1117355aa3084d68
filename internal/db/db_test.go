// Package db provides integration tests for SurrealDB operations.
package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/visio-labs/visio/internal/models"
)

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	// Start SurrealDB container
	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	// Get container host and port
	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	// Connect to test database
	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	// Initialize schema
	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	// Run tests
	code := m.Run()

	// Cleanup
	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func testRecord() models.ImageRecord {
	return models.NewImageRecord("images/test/cat.jpg", "2048")
}

func TestCreateAndGetImage(t *testing.T) {
	ctx := context.Background()

	rec := testRecord()
	if err := testDB.CreateImage(ctx, rec); err != nil {
		t.Fatalf("CreateImage failed: %v", err)
	}
	defer func() { _ = testDB.DeleteImage(ctx, rec.ID) }()

	got, err := testDB.GetImage(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetImage failed: %v", err)
	}
	if got.ID != rec.ID {
		t.Errorf("Expected id %q, got %q", rec.ID, got.ID)
	}
	if got.ObjectPath != rec.ObjectPath {
		t.Errorf("Expected object path %q, got %q", rec.ObjectPath, got.ObjectPath)
	}
	if got.Status != models.StatusPending {
		t.Errorf("Expected status pending, got %q", got.Status)
	}
	if len(got.Labels) != 0 {
		t.Errorf("Expected no labels, got %v", got.Labels)
	}
}

func TestGetImageNotFound(t *testing.T) {
	ctx := context.Background()

	_, err := testDB.GetImage(ctx, "does-not-exist")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestUpdateImage(t *testing.T) {
	ctx := context.Background()

	rec := testRecord()
	if err := testDB.CreateImage(ctx, rec); err != nil {
		t.Fatalf("CreateImage failed: %v", err)
	}
	defer func() { _ = testDB.DeleteImage(ctx, rec.ID) }()

	rec.Labels = []string{"cat", "animal"}
	rec.Status = models.StatusCompleted
	rec.TimeUpdated = time.Now().UTC()
	if err := testDB.UpdateImage(ctx, rec); err != nil {
		t.Fatalf("UpdateImage failed: %v", err)
	}

	got, err := testDB.GetImage(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetImage after update failed: %v", err)
	}
	if got.Status != models.StatusCompleted {
		t.Errorf("Expected status completed, got %q", got.Status)
	}
	if len(got.Labels) != 2 || got.Labels[0] != "cat" {
		t.Errorf("Expected labels [cat animal], got %v", got.Labels)
	}
}

func TestUpdateImageMissing(t *testing.T) {
	ctx := context.Background()

	rec := testRecord()
	// Never created; UPDATE must not resurrect it.
	err := testDB.UpdateImage(ctx, rec)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for update of missing record, got %v", err)
	}

	if _, err := testDB.GetImage(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Fatal("Update of a missing record must not create it")
	}
}

func TestDeleteImage(t *testing.T) {
	ctx := context.Background()

	rec := testRecord()
	if err := testDB.CreateImage(ctx, rec); err != nil {
		t.Fatalf("CreateImage failed: %v", err)
	}

	if err := testDB.DeleteImage(ctx, rec.ID); err != nil {
		t.Fatalf("DeleteImage failed: %v", err)
	}
	if _, err := testDB.GetImage(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Error("Record should be gone after delete")
	}

	// Deleting again is not an error
	if err := testDB.DeleteImage(ctx, rec.ID); err != nil {
		t.Errorf("Deleting a missing record should not error: %v", err)
	}
}

func TestListImagesOrder(t *testing.T) {
	ctx := context.Background()

	older := testRecord()
	older.TimeAdded = time.Now().UTC().Add(-time.Hour)
	newer := testRecord()

	for _, rec := range []models.ImageRecord{older, newer} {
		if err := testDB.CreateImage(ctx, rec); err != nil {
			t.Fatalf("CreateImage failed: %v", err)
		}
	}
	defer func() {
		_ = testDB.DeleteImage(ctx, older.ID)
		_ = testDB.DeleteImage(ctx, newer.ID)
	}()

	records, err := testDB.ListImages(ctx, 100)
	if err != nil {
		t.Fatalf("ListImages failed: %v", err)
	}
	if len(records) < 2 {
		t.Fatalf("Expected at least 2 records, got %d", len(records))
	}

	var posOlder, posNewer = -1, -1
	for i, rec := range records {
		switch rec.ID {
		case older.ID:
			posOlder = i
		case newer.ID:
			posNewer = i
		}
	}
	if posOlder == -1 || posNewer == -1 {
		t.Fatal("Both records should be listed")
	}
	if posNewer > posOlder {
		t.Error("ListImages should return newest first")
	}
}

func TestSearchImagesByLabel(t *testing.T) {
	ctx := context.Background()

	tagged := testRecord()
	tagged.Labels = []string{"dog", "animal"}
	plain := testRecord()

	for _, rec := range []models.ImageRecord{tagged, plain} {
		if err := testDB.CreateImage(ctx, rec); err != nil {
			t.Fatalf("CreateImage failed: %v", err)
		}
	}
	defer func() {
		_ = testDB.DeleteImage(ctx, tagged.ID)
		_ = testDB.DeleteImage(ctx, plain.ID)
	}()

	results, err := testDB.SearchImagesByLabel(ctx, "dog")
	if err != nil {
		t.Fatalf("SearchImagesByLabel failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].ID != tagged.ID {
		t.Errorf("Expected %q, got %q", tagged.ID, results[0].ID)
	}

	none, err := testDB.SearchImagesByLabel(ctx, "spaceship")
	if err != nil {
		t.Fatalf("SearchImagesByLabel (miss) failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Expected no results, got %d", len(none))
	}
}

func TestDeleteAllImages(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := testDB.CreateImage(ctx, testRecord()); err != nil {
			t.Fatalf("CreateImage failed: %v", err)
		}
	}

	if err := testDB.DeleteAllImages(ctx); err != nil {
		t.Fatalf("DeleteAllImages failed: %v", err)
	}

	records, err := testDB.ListImages(ctx, 100)
	if err != nil {
		t.Fatalf("ListImages failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected empty table, got %d records", len(records))
	}
}
