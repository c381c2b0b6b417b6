package handlers_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/dirops/authseed/internal/consumer"
	"github.com/dirops/authseed/internal/directory"
	"github.com/dirops/authseed/internal/handlers"
	"github.com/dirops/authseed/internal/metrics"
	"github.com/dirops/authseed/internal/mid"
	"github.com/dirops/authseed/pkg/logger"
	"go.opentelemetry.io/otel/trace/noop"
)

// expvar registration is process wide, so every test shares one instance.
var testMetrics = metrics.New()

const testAPIKey = "test-key"

type fakeDirectory struct {
	user      directory.User
	userErr   error
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
	return nil, nil
}

func (f *fakeDirectory) PhoneMethods(ctx context.Context, userID string) ([]directory.PhoneMethod, error) {
	return nil, nil
}

func (f *fakeDirectory) AddEmailMethod(ctx context.Context, userID string, emailAddress string) (directory.AddOutcome, error) {
	f.addedMail = append(f.addedMail, emailAddress)
	return directory.OutcomeAdded, nil
}

func (f *fakeDirectory) AddPhoneMethod(ctx context.Context, userID string, phoneNumber string) (directory.AddOutcome, error) {
	f.addedTel = append(f.addedTel, phoneNumber)
	return directory.OutcomeAdded, nil
}

func newTestRouter(t *testing.T, dir consumer.DirectoryClient) *gin.Engine {
	t.Helper()

	log := logger.New(io.Discard, logger.LevelDebug, logger.EnvironmentDev, "handlers_test", nil)
	tracer := noop.NewTracerProvider().Tracer("")

	cons := consumer.New(log, nil, dir, testMetrics, consumer.Config{})

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mid.Error(log))

	handlers.RegisterRoutes(handlers.Conf{
		Router:   r,
		Consumer: cons,
		Log:      log,
		Tracer:   tracer,
		APIKey:   testAPIKey,
		Build:    "test",
	})

	return r
}

func Test_AuthUpdate(t *testing.T) {
	dir := &fakeDirectory{
		user: directory.User{ID: "obj-1", UserPrincipalName: "jdoe@example.com"},
	}
	r := newTestRouter(t, dir)

	body := `{"employeeId":"123","userName":"jdoe","emailAddress":"jdoe2@example.com","phoneNumber":"+1 555-555-1234"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/authupdate", strings.NewReader(body))
	req.Header.Set("x-api-key", testAPIKey)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body)
	}

	if len(dir.addedMail) != 1 || dir.addedMail[0] != "jdoe2@example.com" {
		t.Errorf("expected the email method to be added, got %v", dir.addedMail)
	}
	if len(dir.addedTel) != 1 || dir.addedTel[0] != "+1 555-555-1234" {
		t.Errorf("expected the phone method to be added, got %v", dir.addedTel)
	}
}

func Test_AuthUpdate_MissingAPIKey(t *testing.T) {
	r := newTestRouter(t, &fakeDirectory{})

	req := httptest.NewRequest(http.MethodPost, "/v1/authupdate", strings.NewReader(`{}`))
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without an api key, got %d", w.Code)
	}
}

func Test_AuthUpdate_MissingIdentifiers(t *testing.T) {
	r := newTestRouter(t, &fakeDirectory{})

	// No userPrincipalName and no userName/employeeId pair.
	body := `{"emailAddress":"jdoe2@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/authupdate", strings.NewReader(body))
	req.Header.Set("x-api-key", testAPIKey)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for missing identifiers, got %d: %s", w.Code, w.Body)
	}
}

func Test_AuthUpdate_UserNotFound(t *testing.T) {
	dir := &fakeDirectory{userErr: directory.ErrUserNotFound}
	r := newTestRouter(t, dir)

	body := `{"userPrincipalName":"ghost@example.com","emailAddress":"g@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/authupdate", strings.NewReader(body))
	req.Header.Set("x-api-key", testAPIKey)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for an unknown user, got %d: %s", w.Code, w.Body)
	}
}

func Test_Liveness(t *testing.T) {
	r := newTestRouter(t, &fakeDirectory{})

	req := httptest.NewRequest(http.MethodGet, "/v1/liveness", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var info handlers.Info
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatalf("decoding liveness body: %s", err)
	}
	if info.Status != "running" {
		t.Errorf("expected status running, got %q", info.Status)
	}
	if info.Build != "test" {
		t.Errorf("expected build test, got %q", info.Build)
	}
}
