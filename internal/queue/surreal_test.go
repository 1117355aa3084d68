// Integration tests for the SurrealDB-backed notification queue.
package queue

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

	"github.com/visio-labs/visio/internal/db"
	"github.com/visio-labs/visio/internal/models"
)

var testDB *db.Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

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

	testDB, err = db.NewClient(ctx, db.Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "queue_test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

// newSurrealTestQueue wipes the notification table and returns a queue
// with a short lock window so expiry tests run fast.
func newSurrealTestQueue(t *testing.T, lockDuration time.Duration, maxDelivery int) *SurrealQueue {
	t.Helper()
	ctx := context.Background()
	if _, err := testDB.Query(ctx, "DELETE notification", nil); err != nil {
		t.Fatalf("Failed to wipe notification table: %v", err)
	}
	return NewSurrealQueue(testDB, lockDuration, maxDelivery)
}

func publishOne(t *testing.T, q *SurrealQueue) Envelope {
	t.Helper()
	env := NewEnvelope(models.NewImageRecord("images/q/test.jpg", "1"))
	if err := q.Publish(context.Background(), env); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	return env
}

func TestSurrealPublishReceiveComplete(t *testing.T) {
	ctx := context.Background()
	q := newSurrealTestQueue(t, 5*time.Second, 5)
	env := publishOne(t, q)

	d, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if d == nil {
		t.Fatal("Expected a delivery")
	}
	if d.DeliveryCount() != 1 {
		t.Errorf("Expected delivery count 1, got %d", d.DeliveryCount())
	}

	got, err := DecodeEnvelope(d.Body())
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}
	if got.ID != env.ID {
		t.Errorf("Expected envelope id %q, got %q", env.ID, got.ID)
	}
	if got.Content.ObjectPath != "images/q/test.jpg" {
		t.Errorf("Unexpected content: %+v", got.Content)
	}

	// While locked, the queue has nothing else to hand out.
	other, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Second receive failed: %v", err)
	}
	if other != nil {
		t.Fatal("Locked message must not be redelivered before expiry")
	}

	if err := d.Complete(ctx); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	ready, locked, dead, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if ready+locked+dead != 0 {
		t.Errorf("Expected empty queue after complete, got ready=%d locked=%d dead=%d", ready, locked, dead)
	}
}

func TestSurrealReceiveEmpty(t *testing.T) {
	q := newSurrealTestQueue(t, time.Second, 5)

	d, err := q.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if d != nil {
		t.Fatal("Expected nil delivery from an empty queue")
	}
}

func TestSurrealLockExpiryRedelivers(t *testing.T) {
	ctx := context.Background()
	q := newSurrealTestQueue(t, 300*time.Millisecond, 5)
	publishOne(t, q)

	first, err := q.Receive(ctx)
	if err != nil || first == nil {
		t.Fatalf("First receive failed: %v", err)
	}

	// Let the lock lapse without completing.
	time.Sleep(400 * time.Millisecond)

	second, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive after expiry failed: %v", err)
	}
	if second == nil {
		t.Fatal("Expired message should be redelivered")
	}
	if second.DeliveryCount() != 2 {
		t.Errorf("Expected delivery count 2, got %d", second.DeliveryCount())
	}

	// The first consumer's lock is gone now.
	if err := first.RenewLock(ctx); !errors.Is(err, ErrLockLost) {
		t.Errorf("Expected ErrLockLost for the stale consumer, got %v", err)
	}

	_ = second.Complete(ctx)
}

func TestSurrealRenewLockKeepsMessage(t *testing.T) {
	ctx := context.Background()
	q := newSurrealTestQueue(t, 300*time.Millisecond, 5)
	publishOne(t, q)

	d, err := q.Receive(ctx)
	if err != nil || d == nil {
		t.Fatalf("Receive failed: %v", err)
	}

	// Renew past the original window.
	for i := 0; i < 3; i++ {
		time.Sleep(150 * time.Millisecond)
		if err := d.RenewLock(ctx); err != nil {
			t.Fatalf("RenewLock %d failed: %v", i, err)
		}
	}

	// Still locked for everyone else.
	other, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if other != nil {
		t.Fatal("Renewed message must not be redelivered")
	}

	_ = d.Complete(ctx)
}

func TestSurrealAbandonReleasesImmediately(t *testing.T) {
	ctx := context.Background()
	q := newSurrealTestQueue(t, 5*time.Second, 5)
	publishOne(t, q)

	d, err := q.Receive(ctx)
	if err != nil || d == nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if err := d.Abandon(ctx); err != nil {
		t.Fatalf("Abandon failed: %v", err)
	}

	again, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive after abandon failed: %v", err)
	}
	if again == nil {
		t.Fatal("Abandoned message should be claimable immediately")
	}
	if again.DeliveryCount() != 2 {
		t.Errorf("Expected delivery count 2, got %d", again.DeliveryCount())
	}

	_ = again.Complete(ctx)
}

func TestSurrealDeadLetterAfterBudget(t *testing.T) {
	ctx := context.Background()
	q := newSurrealTestQueue(t, 150*time.Millisecond, 2)
	publishOne(t, q)

	// Burn through the delivery budget without completing.
	for i := 0; i < 2; i++ {
		d, err := q.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive %d failed: %v", i, err)
		}
		if d == nil {
			t.Fatalf("Expected delivery on attempt %d", i)
		}
		time.Sleep(250 * time.Millisecond)
	}

	// The next sweep parks the exhausted message instead of delivering it.
	d, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Final receive failed: %v", err)
	}
	if d != nil {
		t.Fatal("Exhausted message must not be delivered again")
	}

	_, _, dead, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if dead != 1 {
		t.Errorf("Expected 1 dead message, got %d", dead)
	}
}
