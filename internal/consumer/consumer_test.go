package consumer_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/dirops/authseed/internal/consumer"
	"github.com/dirops/authseed/internal/directory"
	"github.com/dirops/authseed/internal/metrics"
	"github.com/dirops/authseed/internal/queue"
	"github.com/dirops/authseed/pkg/logger"
	"github.com/google/uuid"
)

// expvar registration is process wide, share one instance across tests.
var testMetrics = metrics.New()

type fakeQueueClient struct {
	mu       sync.Mutex
	messages []queue.Message
	deleted  []uuid.UUID
}

func (f *fakeQueueClient) Receive(ctx context.Context, max int) ([]queue.Message, error) {
	if len(f.messages) > max {
		return f.messages[:max], nil
	}
	return f.messages, nil
}

func (f *fakeQueueClient) Delete(ctx context.Context, id uuid.UUID, receipt uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeQueueClient) wasDeleted(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deleted {
		if d == id {
			return true
		}
	}
	return false
}

type fakeDirectory struct {
	mu sync.Mutex

	user      directory.User
	userErr   error
	emails    []directory.EmailMethod
	phones    []directory.PhoneMethod
	outcome   directory.AddOutcome
	addErr    error
	addedMail []string
	addedTel  []string
}

func (f *fakeDirectory) UserByPrincipalName(ctx context.Context, upn string) (directory.User, error) {
	return f.user, f.userErr
}

func (f *fakeDirectory) UserByNameAndEmployeeNumber(ctx context.Context, userName string, employeeNumber string) (directory.User, error) {
	return f.user, f.userErr
}

func (f *fakeDirectory) EmailMethods(ctx context.Context, userID string) ([]directory.EmailMethod, error) {
	return f.emails, nil
}

func (f *fakeDirectory) PhoneMethods(ctx context.Context, userID string) ([]directory.PhoneMethod, error) {
	return f.phones, nil
}

func (f *fakeDirectory) AddEmailMethod(ctx context.Context, userID string, emailAddress string) (directory.AddOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return 0, f.addErr
	}
	f.addedMail = append(f.addedMail, emailAddress)
	return f.outcome, nil
}

func (f *fakeDirectory) AddPhoneMethod(ctx context.Context, userID string, phoneNumber string) (directory.AddOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return 0, f.addErr
	}
	f.addedTel = append(f.addedTel, phoneNumber)
	return f.outcome, nil
}

func newTestConsumer(t *testing.T, qc *fakeQueueClient, dir *fakeDirectory) *consumer.Consumer {
	t.Helper()
	log := logger.New(io.Discard, logger.LevelDebug, logger.EnvironmentDev, "consumer_test", nil)
	return consumer.New(log, qc, dir, testMetrics, consumer.Config{})
}

func message(t *testing.T, body string, dequeueCount int) queue.Message {
	t.Helper()
	return queue.Message{
		ID:           uuid.New(),
		Receipt:      uuid.New(),
		Body:         []byte(body),
		DequeueCount: dequeueCount,
	}
}

func Test_RunBatch_EmptyQueue(t *testing.T) {
	t.Parallel()

	qc := &fakeQueueClient{}
	c := newTestConsumer(t, qc, &fakeDirectory{})

	n, err := c.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("runBatch: %s", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 messages, got %d", n)
	}
}

func Test_RunBatch_SuccessDeletesMessage(t *testing.T) {
	t.Parallel()

	msg := message(t, `{"employeeId":"123","userName":"jdoe","emailAddress":"j@e.c","phoneNumber":"+1 555-555-1234"}`, 1)

	qc := &fakeQueueClient{messages: []queue.Message{msg}}
	dir := &fakeDirectory{user: directory.User{ID: "obj-1", UserPrincipalName: "jdoe@example.com"}}

	c := newTestConsumer(t, qc, dir)

	if _, err := c.RunBatch(context.Background()); err != nil {
		t.Fatalf("runBatch: %s", err)
	}

	if !qc.wasDeleted(msg.ID) {
		t.Error("successfully processed message must be deleted")
	}
	if len(dir.addedMail) != 1 || dir.addedMail[0] != "j@e.c" {
		t.Errorf("expected email auth method add, got %v", dir.addedMail)
	}
	if len(dir.addedTel) != 1 || dir.addedTel[0] != "+1 555-555-1234" {
		t.Errorf("expected phone auth method add, got %v", dir.addedTel)
	}
}

func Test_RunBatch_PoisonCutoff(t *testing.T) {
	t.Parallel()

	poisoned := message(t, `{"userName":"gone","employeeId":"404"}`, 5)
	retryable := message(t, `{"userName":"gone","employeeId":"404"}`, 4)

	qc := &fakeQueueClient{messages: []queue.Message{poisoned, retryable}}
	dir := &fakeDirectory{userErr: errors.New("user not found")}

	c := newTestConsumer(t, qc, dir)

	if _, err := c.RunBatch(context.Background()); err != nil {
		t.Fatalf("runBatch: %s", err)
	}

	if !qc.wasDeleted(poisoned.ID) {
		t.Error("message at dequeue count 5 must be deleted")
	}
	if qc.wasDeleted(retryable.ID) {
		t.Error("message at dequeue count 4 must be left for redelivery")
	}
}

func Test_RunBatch_DryRunIsNotAnError(t *testing.T) {
	t.Parallel()

	msg := message(t, `{"userName":"jdoe","employeeId":"123","emailAddress":"j@e.c"}`, 1)

	qc := &fakeQueueClient{messages: []queue.Message{msg}}
	dir := &fakeDirectory{
		user:    directory.User{ID: "obj-1", UserPrincipalName: "jdoe@example.com"},
		outcome: directory.OutcomeDryRunSkipped,
	}

	c := newTestConsumer(t, qc, dir)

	if _, err := c.RunBatch(context.Background()); err != nil {
		t.Fatalf("runBatch: %s", err)
	}

	if !qc.wasDeleted(msg.ID) {
		t.Error("dry run skip must count as success and ack the message")
	}
}

func Test_RunBatch_SkipsExistingMethods(t *testing.T) {
	t.Parallel()

	msg := message(t, `{"userName":"jdoe","employeeId":"123","emailAddress":"j@e.c","phoneNumber":"+1 555-555-1234"}`, 1)

	qc := &fakeQueueClient{messages: []queue.Message{msg}}
	dir := &fakeDirectory{
		user:   directory.User{ID: "obj-1", UserPrincipalName: "jdoe@example.com"},
		emails: []directory.EmailMethod{{ID: "m1", EmailAddress: "old@e.c"}},
		phones: []directory.PhoneMethod{{ID: "m2", PhoneNumber: "+1 555-000-0000", PhoneType: "mobile"}},
	}

	c := newTestConsumer(t, qc, dir)

	if _, err := c.RunBatch(context.Background()); err != nil {
		t.Fatalf("runBatch: %s", err)
	}

	if len(dir.addedMail) != 0 || len(dir.addedTel) != 0 {
		t.Errorf("existing methods must block adds, got mail=%v tel=%v", dir.addedMail, dir.addedTel)
	}
	if !qc.wasDeleted(msg.ID) {
		t.Error("skipping existing methods is a success, message must be acked")
	}
}

func Test_HandleUpdate_HomePhoneFallback(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{user: directory.User{ID: "obj-1", UserPrincipalName: "jdoe@example.com"}}
	c := newTestConsumer(t, &fakeQueueClient{}, dir)

	upd := queue.UpdateMessage{
		UserName:   "jdoe",
		EmployeeID: "123",
		HomePhone:  "+1 555-777-8888",
	}

	if err := c.HandleUpdate(context.Background(), upd); err != nil {
		t.Fatalf("handleUpdate: %s", err)
	}

	if len(dir.addedTel) != 1 || dir.addedTel[0] != "+1 555-777-8888" {
		t.Errorf("expected home phone fallback add, got %v", dir.addedTel)
	}
}

func Test_HandleUpdate_MissingIdentifiers(t *testing.T) {
	t.Parallel()

	c := newTestConsumer(t, &fakeQueueClient{}, &fakeDirectory{})

	upd := queue.UpdateMessage{EmailAddress: "j@e.c"}

	if err := c.HandleUpdate(context.Background(), upd); err == nil {
		t.Fatal("expected an error when no identifier is supplied")
	}
}

func Test_HandleUpdate_ResolvesByPrincipalName(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{user: directory.User{ID: "obj-1", UserPrincipalName: "jdoe@example.com"}}
	c := newTestConsumer(t, &fakeQueueClient{}, dir)

	upd := queue.UpdateMessage{
		UserPrincipalName: "jdoe@example.com",
		EmailAddress:      "j@e.c",
	}

	if err := c.HandleUpdate(context.Background(), upd); err != nil {
		t.Fatalf("handleUpdate: %s", err)
	}

	if len(dir.addedMail) != 1 {
		t.Errorf("expected one email add, got %v", dir.addedMail)
	}
}
