package observability

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestLiveness(t *testing.T) {
	checker := NewHealthChecker(nil, nil)

	rr := httptest.NewRecorder()
	checker.Liveness(rr, httptest.NewRequest("GET", "/health/live", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("liveness status = %d", rr.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["status"] != StatusHealthy {
		t.Errorf("status = %v", body["status"])
	}
}

func TestReadinessHealthy(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	checker := NewHealthChecker(db, rdb)

	rr := httptest.NewRecorder()
	checker.Readiness(rr, httptest.NewRequest("GET", "/health/ready", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("readiness status = %d: %s", rr.Code, rr.Body.String())
	}
	var status HealthStatus
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if status.Status != StatusHealthy {
		t.Errorf("status = %s", status.Status)
	}
	if status.Dependencies["database"].Status != StatusHealthy {
		t.Errorf("database = %+v", status.Dependencies["database"])
	}
	if status.Dependencies["redis"].Status != StatusHealthy {
		t.Errorf("redis = %+v", status.Dependencies["redis"])
	}
}

func TestReadinessRedisDownIsDegraded(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close() // redis outage

	checker := NewHealthChecker(db, rdb)

	rr := httptest.NewRecorder()
	checker.Readiness(rr, httptest.NewRequest("GET", "/health/ready", nil))

	// Degraded still serves traffic
	if rr.Code != http.StatusOK {
		t.Fatalf("readiness status = %d", rr.Code)
	}
	var status HealthStatus
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if status.Status != StatusDegraded {
		t.Errorf("status = %s, want degraded", status.Status)
	}
}
