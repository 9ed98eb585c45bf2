package metrics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	bolt "go.etcd.io/bbolt"
)

type mockStateStats struct {
	stats *StateStats
}

func (m *mockStateStats) Stats(ctx context.Context) (*StateStats, error) {
	return m.stats, nil
}

func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metrics.db")
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCollectorPersistence(t *testing.T) {
	db := openTestDB(t)

	m1 := New()
	c1, err := NewCollector(db, m1, nil, time.Hour)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}

	m1.MessagesSentTotal.Add(5)
	m1.MessagesFailedTotal.Add(2)
	m1.BroadcastsTotal.WithLabelValues("completed").Add(3)
	m1.SessionEventsTotal.WithLabelValues("ready").Inc()
	m1.APIRequestsTotal.WithLabelValues("POST", "/api/v1/lists", "201").Add(4)
	m1.APIErrorsTotal.WithLabelValues("not_found").Inc()

	c1.Start(context.Background())
	if err := c1.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	// A fresh registry picks the values back up
	m2 := New()
	c2, err := NewCollector(db, m2, nil, time.Hour)
	if err != nil {
		t.Fatalf("NewCollector() reload error = %v", err)
	}
	_ = c2

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"sent", testutil.ToFloat64(m2.MessagesSentTotal), 5},
		{"failed", testutil.ToFloat64(m2.MessagesFailedTotal), 2},
		{"broadcasts", testutil.ToFloat64(m2.BroadcastsTotal.WithLabelValues("completed")), 3},
		{"events", testutil.ToFloat64(m2.SessionEventsTotal.WithLabelValues("ready")), 1},
		{"api requests", testutil.ToFloat64(m2.APIRequestsTotal.WithLabelValues("POST", "/api/v1/lists", "201")), 4},
		{"api errors", testutil.ToFloat64(m2.APIErrorsTotal.WithLabelValues("not_found")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestCollectorSnapshot(t *testing.T) {
	db := openTestDB(t)
	m := New()
	c, err := NewCollector(db, m, nil, 0)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}

	m.APIRequestsTotal.WithLabelValues("GET", "/health", "200").Inc()
	m.APIRequestsTotal.WithLabelValues("GET", "/health", "200").Inc()

	snap := c.Snapshot()
	if got := snap.APIRequests["GET|/health|200"]; got != 2 {
		t.Errorf("snapshot api requests = %v, want 2", got)
	}
	if snap.MessagesSent != 0 {
		t.Errorf("snapshot sent = %v, want 0", snap.MessagesSent)
	}
}

func TestCollectSystemMetrics(t *testing.T) {
	db := openTestDB(t)
	m := New()
	state := &mockStateStats{stats: &StateStats{Contacts: 12, Selected: 3, Lists: 2}}

	c, err := NewCollector(db, m, state, time.Hour)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}

	c.collectSystemMetrics(context.Background())

	if v := testutil.ToFloat64(m.ContactsLoaded); v != 12 {
		t.Errorf("contacts = %v, want 12", v)
	}
	if v := testutil.ToFloat64(m.ContactsSelected); v != 3 {
		t.Errorf("selected = %v, want 3", v)
	}
	if v := testutil.ToFloat64(m.ListsTotal); v != 2 {
		t.Errorf("lists = %v, want 2", v)
	}
	if v := testutil.ToFloat64(m.Goroutines); v <= 0 {
		t.Errorf("goroutines = %v, want > 0", v)
	}
	if v := testutil.ToFloat64(m.StorageUsedBytes); v <= 0 {
		t.Errorf("storage bytes = %v, want > 0", v)
	}
}

func TestCollectorIgnoresCorruptCounters(t *testing.T) {
	db := openTestDB(t)
	err := db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketMetrics)
		if err != nil {
			return err
		}
		return b.Put(keyCounters, []byte("{broken"))
	})
	if err != nil {
		t.Fatalf("seed error = %v", err)
	}

	m := New()
	if _, err := NewCollector(db, m, nil, time.Hour); err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	if v := testutil.ToFloat64(m.MessagesSentTotal); v != 0 {
		t.Errorf("sent = %v, want 0", v)
	}
}
