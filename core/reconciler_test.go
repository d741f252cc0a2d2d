package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"apiwatch/models"
)

type fakeStore struct {
	mu          sync.Mutex
	savedCount  int
	configCount int
	saveErr     error
}

func (f *fakeStore) SaveCapturedRequests(records []models.CapturedRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedCount++
	return f.saveErr
}

func (f *fakeStore) SaveMonitorConfig(cfg models.MonitorConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configCount++
	return f.saveErr
}

func (f *fakeStore) saves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.savedCount
}

func testConfig() models.MonitorConfig {
	return models.MonitorConfig{
		APIPrefixes: []string{"https://api.example.com/"},
		MaxRecords:  10,
	}
}

func newTestSession(cfg models.MonitorConfig) *Session {
	s := NewSession(cfg, nil, 5000*time.Millisecond)
	base := time.UnixMilli(1_700_000_000_000)
	s.now = func() time.Time { return base }
	return s
}

func sourceBRecord(id string, ts int64) models.CapturedRequest {
	return models.CapturedRequest{
		ID:           id,
		URL:          "https://api.example.com/v1/users",
		Method:       "GET",
		Status:       200,
		StatusText:   "OK",
		ResponseBody: `{"code":0}`,
		Timestamp:    ts,
	}
}

func TestLifecycleCompletionThenBodyRecordReplaces(t *testing.T) {
	s := newTestSession(testConfig())

	s.RequestStarted(models.RequestStarted{
		RequestID: "req-1",
		URL:       "https://api.example.com/v1/users",
		Method:    "GET",
		Timestamp: 1000,
	})
	s.RequestCompleted(models.RequestCompleted{
		RequestID: "req-1",
		Status:    200,
		Timestamp: 1200,
	})

	records := s.Snapshot()
	if len(records) != 1 {
		t.Fatalf("expected 1 record after completion, got %d", len(records))
	}
	if !models.IsLifecycleSentinel(records[0].ResponseBody) {
		t.Fatalf("lifecycle completion must carry the sentinel body, got %q", records[0].ResponseBody)
	}

	bodyRec := sourceBRecord("b-1", 1500)
	s.RecordFromSourceB(bodyRec)

	records = s.Snapshot()
	if len(records) != 1 {
		t.Fatalf("expected the body record to replace the sentinel, got %d records", len(records))
	}
	if records[0].ID != "b-1" || records[0].ResponseBody != `{"code":0}` {
		t.Errorf("surviving record must be the body-bearing one, got %+v", records[0])
	}
}

func TestBodyRecordThenLifecycleCompletionDropped(t *testing.T) {
	s := newTestSession(testConfig())

	s.RecordFromSourceB(sourceBRecord("b-1", 1000))

	s.RequestStarted(models.RequestStarted{
		RequestID: "req-1",
		URL:       "https://api.example.com/v1/users",
		Method:    "GET",
		Timestamp: 900,
	})
	s.RequestCompleted(models.RequestCompleted{
		RequestID: "req-1",
		Status:    200,
		Timestamp: 1200,
	})

	records := s.Snapshot()
	if len(records) != 1 {
		t.Fatalf("completion correlated with a body record must be dropped, got %d records", len(records))
	}
	if records[0].ID != "b-1" {
		t.Errorf("expected the body record to survive, got %+v", records[0])
	}
}

func TestCorrelationWindowExpired(t *testing.T) {
	s := newTestSession(testConfig())

	s.RequestStarted(models.RequestStarted{
		RequestID: "req-1",
		URL:       "https://api.example.com/v1/users",
		Method:    "GET",
		Timestamp: 1000,
	})
	s.RequestCompleted(models.RequestCompleted{
		RequestID: "req-1",
		Status:    200,
		Timestamp: 1100,
	})

	// Same URL but 6000ms later: outside the window, treated as distinct.
	s.RecordFromSourceB(sourceBRecord("b-1", 7100))

	records := s.Snapshot()
	if len(records) != 2 {
		t.Fatalf("records outside the correlation window must not merge, got %d records", len(records))
	}
	if records[0].ID != "b-1" {
		t.Errorf("newest record must be first, got %+v", records[0])
	}
}

func TestReplacePreservesPosition(t *testing.T) {
	s := newTestSession(testConfig())

	s.RequestStarted(models.RequestStarted{
		RequestID: "req-1",
		URL:       "https://api.example.com/v1/users",
		Method:    "GET",
		Timestamp: 1000,
	})
	s.RequestCompleted(models.RequestCompleted{
		RequestID: "req-1",
		Status:    200,
		Timestamp: 1100,
	})

	other := sourceBRecord("newer", 1200)
	other.URL = "https://api.example.com/v1/orders"
	s.RecordFromSourceB(other)

	// The replacement lands where the sentinel sat, not at the head.
	s.RecordFromSourceB(sourceBRecord("b-1", 1300))

	records := s.Snapshot()
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != "newer" {
		t.Errorf("head must remain the newer unrelated record, got %s", records[0].ID)
	}
	if records[1].ID != "b-1" {
		t.Errorf("replacement must keep the sentinel's position, got %s", records[1].ID)
	}
}

func TestEvictionKeepsMostRecent(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRecords = 3
	s := newTestSession(cfg)

	for i := 0; i < 5; i++ {
		rec := sourceBRecord(fmt.Sprintf("b-%d", i), int64(1000+i*10_000))
		rec.URL = fmt.Sprintf("https://api.example.com/v1/item/%d", i)
		s.RecordFromSourceB(rec)
	}

	records := s.Snapshot()
	if len(records) != 3 {
		t.Fatalf("capacity must be enforced, got %d records", len(records))
	}
	for i, wantID := range []string{"b-4", "b-3", "b-2"} {
		if records[i].ID != wantID {
			t.Errorf("records[%d].ID = %s, want %s", i, records[i].ID, wantID)
		}
	}
}

func TestUnmatchedPrefixIgnored(t *testing.T) {
	s := newTestSession(testConfig())

	rec := sourceBRecord("b-1", 1000)
	rec.URL = "https://other.example.org/v1/users"
	s.RecordFromSourceB(rec)

	s.RequestStarted(models.RequestStarted{
		RequestID: "req-1",
		URL:       "https://other.example.org/v1/users",
		Method:    "GET",
		Timestamp: 1000,
	})
	if s.PendingCount() != 0 {
		t.Error("lifecycle observations for unmatched URLs must not be tracked")
	}

	if len(s.Snapshot()) != 0 {
		t.Error("records for unmatched URLs must be ignored")
	}
}

func TestRequestFailedClassification(t *testing.T) {
	s := newTestSession(testConfig())

	s.RequestStarted(models.RequestStarted{
		RequestID: "req-1",
		URL:       "https://api.example.com/v1/users",
		Method:    "GET",
		Timestamp: 1000,
	})
	s.RequestFailed(models.RequestFailed{
		RequestID: "req-1",
		Error:     "net::ERR_TIMED_OUT",
		Timestamp: 4000,
	})

	records := s.Snapshot()
	if len(records) != 1 {
		t.Fatalf("expected 1 failure record, got %d", len(records))
	}
	rec := records[0]
	if !rec.IsError || rec.Status != 0 {
		t.Errorf("failure record must be a status-0 error, got %+v", rec)
	}
	if rec.ResponseBody != models.SentinelNetworkError {
		t.Errorf("failure record body = %q, want network error sentinel", rec.ResponseBody)
	}
	if rec.ErrorType != "timeout" {
		t.Errorf("ErrorType = %q, want timeout", rec.ErrorType)
	}
	if rec.Duration != 3000 {
		t.Errorf("Duration = %d, want 3000", rec.Duration)
	}
}

func TestSourceBValidation(t *testing.T) {
	cfg := testConfig()
	cfg.ValidationRules = []models.ValidationRule{
		{Key: "code", ExpectedValue: "0", Operator: "equals", Enabled: true},
	}
	s := newTestSession(cfg)

	good := sourceBRecord("good", 1000)
	s.RecordFromSourceB(good)

	bad := sourceBRecord("bad", 20_000)
	bad.URL = "https://api.example.com/v1/orders"
	bad.ResponseBody = `{"code":500,"message":"boom"}`
	s.RecordFromSourceB(bad)

	records := s.Snapshot()
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != "bad" || !records[0].IsValidationError || !records[0].IsError {
		t.Errorf("failing record must be flagged, got %+v", records[0])
	}
	if records[1].IsValidationError {
		t.Errorf("passing record must not be flagged, got %+v", records[1])
	}
}

func TestSentinelBodiesNeverValidated(t *testing.T) {
	cfg := testConfig()
	cfg.ValidationRules = []models.ValidationRule{
		{Key: "code", ExpectedValue: "0", Operator: "equals", Enabled: true},
	}
	s := newTestSession(cfg)

	rec := sourceBRecord("s-1", 1000)
	rec.ResponseBody = models.SentinelLifecycleNoBody
	s.RecordFromSourceB(rec)

	records := s.Snapshot()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].IsValidationError {
		t.Error("sentinel bodies must not be validated")
	}
}

func TestStatsAndClear(t *testing.T) {
	s := newTestSession(testConfig())

	s.RecordFromSourceB(sourceBRecord("ok", 1000))
	bad := sourceBRecord("bad", 20_000)
	bad.URL = "https://api.example.com/v1/orders"
	bad.Status = 500
	bad.StatusText = "Internal Server Error"
	s.RecordFromSourceB(bad)

	stats := s.Stats()
	if stats.Total != 2 || stats.Errors != 1 {
		t.Errorf("Stats() = %+v, want total 2, errors 1", stats)
	}

	s.Clear()
	if len(s.Snapshot()) != 0 {
		t.Error("Clear must empty the capture log")
	}
	stats = s.Stats()
	if stats.Total != 0 || stats.Errors != 0 {
		t.Errorf("Stats() after clear = %+v, want zeros", stats)
	}
}

func TestReplaceConfigTruncates(t *testing.T) {
	store := &fakeStore{}
	cfg := testConfig()
	s := NewSession(cfg, store, 5000*time.Millisecond)
	base := time.UnixMilli(1_700_000_000_000)
	s.now = func() time.Time { return base }

	for i := 0; i < 5; i++ {
		rec := sourceBRecord(fmt.Sprintf("b-%d", i), int64(1000+i*10_000))
		rec.URL = fmt.Sprintf("https://api.example.com/v1/item/%d", i)
		s.RecordFromSourceB(rec)
	}

	newCfg := testConfig()
	newCfg.MaxRecords = 2
	s.ReplaceConfig(newCfg)

	if got := len(s.Snapshot()); got != 2 {
		t.Errorf("lowering the cap must trim immediately, got %d records", got)
	}
	if s.Config().MaxRecords != 2 {
		t.Errorf("Config() must reflect the replacement, got %+v", s.Config())
	}
}

func TestPersistenceFailureNeverSurfaces(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("disk full")}
	s := NewSession(testConfig(), store, 5000*time.Millisecond)
	base := time.UnixMilli(1_700_000_000_000)
	s.now = func() time.Time { return base }

	s.RecordFromSourceB(sourceBRecord("b-1", 1000))

	s.RequestStarted(models.RequestStarted{
		RequestID: "req-1",
		URL:       "https://api.example.com/v1/orders",
		Method:    "GET",
		Timestamp: 20_000,
	})
	s.RequestCompleted(models.RequestCompleted{
		RequestID: "req-1",
		Status:    200,
		Timestamp: 20_100,
	})

	records := s.Snapshot()
	if len(records) != 2 {
		t.Fatalf("failed flushes must not undo in-memory state, got %d records", len(records))
	}

	newCfg := testConfig()
	newCfg.MaxRecords = 1
	s.ReplaceConfig(newCfg)
	if got := len(s.Snapshot()); got != 1 {
		t.Errorf("config replace must apply despite persistence failure, got %d records", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for store.saves() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if store.saves() < 2 {
		t.Error("expected the failing store to have been asked to persist")
	}
}

func TestRevisionAdvancesOnChange(t *testing.T) {
	s := newTestSession(testConfig())

	before := s.Revision()
	s.RecordFromSourceB(sourceBRecord("b-1", 1000))
	after := s.Revision()
	if after <= before {
		t.Errorf("revision must advance on insert: before %d, after %d", before, after)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if got := s.WaitForChange(ctx, before); got != after {
		t.Errorf("WaitForChange(since=%d) = %d, want %d without blocking", before, got, after)
	}
}

func TestWaitForChangeWakesOnInsert(t *testing.T) {
	s := newTestSession(testConfig())
	since := s.Revision()

	done := make(chan uint64, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- s.WaitForChange(ctx, since)
	}()

	time.Sleep(50 * time.Millisecond)
	s.RecordFromSourceB(sourceBRecord("b-1", 1000))

	select {
	case got := <-done:
		if got <= since {
			t.Errorf("WaitForChange returned %d, want > %d", got, since)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForChange did not wake on insert")
	}
}

func TestSubmitDispatch(t *testing.T) {
	s := newTestSession(testConfig())

	if !s.Submit(models.RequestStarted{RequestID: "r", URL: "https://api.example.com/x", Method: "GET"}) {
		t.Error("Submit must accept RequestStarted")
	}
	if !s.Submit(sourceBRecord("b-1", 1000)) {
		t.Error("Submit must accept CapturedRequest")
	}
	if s.Submit("bogus") {
		t.Error("Submit must reject unknown message kinds")
	}
}
