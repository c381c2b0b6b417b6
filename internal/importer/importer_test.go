package importer_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/dirops/authseed/internal/dbtest"
	stateBus "github.com/dirops/authseed/internal/domains/userstate/bus"
	"github.com/dirops/authseed/internal/domains/userstate/store/statedb"
	"github.com/dirops/authseed/internal/importer"
	"github.com/dirops/authseed/internal/queue"
	"github.com/dirops/authseed/internal/record"
	"github.com/dirops/authseed/pkg/logger"
	"go.opentelemetry.io/otel/trace/noop"
)

type sentMessage struct {
	Body []byte
	TTL  time.Duration
}

type fakeQueue struct {
	mu          sync.Mutex
	sends       []sentMessage
	failFor     string
	delay       time.Duration
	inFlight    int
	maxInFlight int
}

func (f *fakeQueue) Send(ctx context.Context, body []byte, ttl time.Duration) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--

	if f.failFor != "" {
		var msg queue.UpdateMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return err
		}
		if msg.EmployeeID == f.failFor {
			return errors.New("queue transport unavailable")
		}
	}

	f.sends = append(f.sends, sentMessage{Body: body, TTL: ttl})
	return nil
}

func (f *fakeQueue) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func newTestImporter(t *testing.T, cfg importer.Config) (*importer.Importer, *stateBus.Bus, *fakeQueue) {
	t.Helper()

	db := dbtest.NewStateDB(t)
	bus := stateBus.New(statedb.NewStore(db, noop.NewTracerProvider().Tracer("")))

	q := &fakeQueue{}
	log := logger.New(io.Discard, logger.LevelDebug, logger.EnvironmentDev, "importer_test", nil)

	return importer.New(log, bus, q, nil, cfg), bus, q
}

func writeCSV(t *testing.T, lines ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "users.csv")

	content := `"EmployeeNumber","UserName","Email","Phone","HomePhone"` + "\n"
	for _, line := range lines {
		content += line + "\n"
	}

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writeFile: %s", err)
	}

	return path
}

func Test_Run_FirstRunThenIdempotent(t *testing.T) {
	t.Parallel()

	imp, bus, q := newTestImporter(t, importer.Config{})

	path := writeCSV(t,
		`"00123","jdoe","jdoe2@example.com","(555) 555-1234",""`,
		`"00456","asmith","","555-999-0000",""`,
		`"00789","nocontact","","",""`,
	)

	if err := imp.Run(context.Background(), path); err != nil {
		t.Fatalf("run: %s", err)
	}

	// Two users carry contact info, the third must be filtered out.
	if got := q.count(); got != 2 {
		t.Fatalf("expected 2 dispatched messages, got %d", got)
	}

	// A first run commits state for every parsed record.
	count, err := bus.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %s", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 state rows after first run, got %d", count)
	}

	// Re-running against identical input yields an empty delta.
	if err := imp.Run(context.Background(), path); err != nil {
		t.Fatalf("second run: %s", err)
	}
	if got := q.count(); got != 2 {
		t.Fatalf("second run dispatched %d extra messages, want 0", got-2)
	}
}

func Test_Delta_NewUserInclusion(t *testing.T) {
	t.Parallel()

	imp, _, _ := newTestImporter(t, importer.Config{})

	records := []record.UserRecord{
		{EmployeeNumber: "1", UserName: "withemail", SecondaryEmail: "a@b.c"},
		{EmployeeNumber: "2", UserName: "empty"},
	}

	candidates, firstRun, err := imp.Delta(context.Background(), records)
	if err != nil {
		t.Fatalf("delta: %s", err)
	}

	if !firstRun {
		t.Error("expected firstRun with an empty state store")
	}

	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].EmployeeNumber != "1" {
		t.Errorf("wrong candidate included: %s", candidates[0].EmployeeNumber)
	}
	if candidates[0].IsInLastRun {
		t.Error("new user must have isInLastRun=false")
	}
}

func Test_Delta_ChangedPhone(t *testing.T) {
	t.Parallel()

	imp, bus, _ := newTestImporter(t, importer.Config{})

	prior := record.UserRecord{EmployeeNumber: "123", UserName: "jdoe", PhoneNumber: "+1 555-555-1234"}
	if err := bus.Create(context.Background(), stateBus.FromRecord(prior, time.Now().UTC())); err != nil {
		t.Fatalf("seeding state: %s", err)
	}

	fresh := record.UserRecord{EmployeeNumber: "123", UserName: "jdoe", PhoneNumber: "+1 555-999-0000"}

	candidates, firstRun, err := imp.Delta(context.Background(), []record.UserRecord{fresh})
	if err != nil {
		t.Fatalf("delta: %s", err)
	}

	if firstRun {
		t.Error("state store is not empty, firstRun must be false")
	}

	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}

	got := candidates[0]
	if !got.IsInLastRun {
		t.Error("changed user must have isInLastRun=true")
	}
	if got.UserWasRecreated {
		t.Error("changed contact fields must not flag recreation")
	}
	if diff := cmp.Diff(got.UserRecord, fresh); diff != "" {
		t.Errorf("candidate record mismatch (-got +want):\n%s", diff)
	}
}

func Test_Delta_RecreationOverride(t *testing.T) {
	t.Parallel()

	imp, bus, _ := newTestImporter(t, importer.Config{})

	prior := record.UserRecord{EmployeeNumber: "9", UserName: "rborn", DirectoryID: "old-object-id"}
	if err := bus.Create(context.Background(), stateBus.FromRecord(prior, time.Now().UTC())); err != nil {
		t.Fatalf("seeding state: %s", err)
	}

	// Same contact fields (none), only the directory id changed.
	fresh := record.UserRecord{EmployeeNumber: "9", UserName: "rborn", DirectoryID: "new-object-id"}

	candidates, _, err := imp.Delta(context.Background(), []record.UserRecord{fresh})
	if err != nil {
		t.Fatalf("delta: %s", err)
	}

	if len(candidates) != 1 {
		t.Fatalf("expected recreated user in delta, got %d candidates", len(candidates))
	}
	if !candidates[0].UserWasRecreated {
		t.Error("expected userWasRecreated=true")
	}
	if !candidates[0].IsInLastRun {
		t.Error("expected isInLastRun=true")
	}
}

func Test_Delta_UnchangedExcluded(t *testing.T) {
	t.Parallel()

	imp, bus, _ := newTestImporter(t, importer.Config{})

	rec := record.UserRecord{EmployeeNumber: "5", UserName: "same", SecondaryEmail: "s@e.c"}
	if err := bus.Create(context.Background(), stateBus.FromRecord(rec, time.Now().UTC())); err != nil {
		t.Fatalf("seeding state: %s", err)
	}

	candidates, _, err := imp.Delta(context.Background(), []record.UserRecord{rec})
	if err != nil {
		t.Fatalf("delta: %s", err)
	}

	if len(candidates) != 0 {
		t.Fatalf("unchanged record must be excluded, got %d candidates", len(candidates))
	}
}

func Test_Dispatch_TTLByRunType(t *testing.T) {
	t.Parallel()

	cfg := importer.Config{
		TTLFirstRun:  12 * time.Hour,
		TTLDeltaRuns: 30 * time.Minute,
	}
	imp, _, q := newTestImporter(t, cfg)

	rec := record.UserRecord{EmployeeNumber: "1", SecondaryEmail: "a@b.c"}
	cands := []importer.Candidate{{UserRecord: rec}}

	if err := imp.Dispatch(context.Background(), []record.UserRecord{rec}, cands, true); err != nil {
		t.Fatalf("dispatch: %s", err)
	}
	if q.sends[0].TTL != cfg.TTLFirstRun {
		t.Errorf("first run ttl = %s, want %s", q.sends[0].TTL, cfg.TTLFirstRun)
	}

	if err := imp.Dispatch(context.Background(), []record.UserRecord{rec}, []importer.Candidate{{UserRecord: rec, IsInLastRun: true}}, false); err != nil {
		t.Fatalf("dispatch: %s", err)
	}
	if q.sends[1].TTL != cfg.TTLDeltaRuns {
		t.Errorf("delta run ttl = %s, want %s", q.sends[1].TTL, cfg.TTLDeltaRuns)
	}
}

func Test_Dispatch_FailureLeavesStateUncommitted(t *testing.T) {
	t.Parallel()

	imp, bus, q := newTestImporter(t, importer.Config{})
	q.failFor = "2"

	records := []record.UserRecord{
		{EmployeeNumber: "1", SecondaryEmail: "a@b.c"},
		{EmployeeNumber: "2", SecondaryEmail: "d@e.f"},
		{EmployeeNumber: "3", SecondaryEmail: "g@h.i"},
	}

	cands := make([]importer.Candidate, len(records))
	for i, rec := range records {
		cands[i] = importer.Candidate{UserRecord: rec}
	}

	err := imp.Dispatch(context.Background(), records, cands, true)
	if err == nil {
		t.Fatal("expected an error when one enqueue fails")
	}

	// Failures are per message, the siblings still go out.
	if got := q.count(); got != 2 {
		t.Errorf("expected the 2 sibling sends to complete, got %d", got)
	}

	// State stays uncommitted so the next run recomputes the same delta.
	count, err := bus.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %s", err)
	}
	if count != 0 {
		t.Errorf("expected no state rows after a failed dispatch, got %d", count)
	}
}

func Test_Dispatch_BoundedConcurrency(t *testing.T) {
	t.Parallel()

	// MaxDispatch 2 admits a single concurrent send.
	imp, _, q := newTestImporter(t, importer.Config{MaxDispatch: 2})
	q.delay = 5 * time.Millisecond

	var records []record.UserRecord
	var cands []importer.Candidate
	for _, emp := range []string{"1", "2", "3", "4", "5"} {
		rec := record.UserRecord{EmployeeNumber: emp, SecondaryEmail: emp + "@e.c"}
		records = append(records, rec)
		cands = append(cands, importer.Candidate{UserRecord: rec})
	}

	if err := imp.Dispatch(context.Background(), records, cands, true); err != nil {
		t.Fatalf("dispatch: %s", err)
	}

	if got := q.count(); got != 5 {
		t.Fatalf("expected all 5 messages sent, got %d", got)
	}
	if q.maxInFlight > 1 {
		t.Errorf("expected at most 1 concurrent send, observed %d", q.maxInFlight)
	}
}

func Test_Dispatch_DryRun(t *testing.T) {
	t.Parallel()

	imp, bus, q := newTestImporter(t, importer.Config{DryRun: true})

	path := writeCSV(t, `"00123","jdoe","jdoe2@example.com","(555) 555-1234",""`)

	if err := imp.Run(context.Background(), path); err != nil {
		t.Fatalf("run: %s", err)
	}

	if got := q.count(); got != 0 {
		t.Errorf("dry run must not enqueue, got %d messages", got)
	}

	count, err := bus.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %s", err)
	}
	if count != 0 {
		t.Errorf("dry run must not commit state, got %d rows", count)
	}
}

func Test_ReadFile_FirstLineFatal(t *testing.T) {
	t.Parallel()

	imp, _, _ := newTestImporter(t, importer.Config{})

	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("not,a,quoted,line\n"), 0o600); err != nil {
		t.Fatalf("writeFile: %s", err)
	}

	if _, err := imp.ReadFile(context.Background(), path); err == nil {
		t.Fatal("expected an error for an invalid first line")
	}
}

func Test_ReadFile_SkipsInvalidLines(t *testing.T) {
	t.Parallel()

	imp, _, _ := newTestImporter(t, importer.Config{})

	path := writeCSV(t,
		`"00123","jdoe","jdoe2@example.com","(555) 555-1234",""`,
		`this line is garbage`,
		`"00456","asmith","","555-999-0000",""`,
	)

	records, err := imp.ReadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("readFile: %s", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}
