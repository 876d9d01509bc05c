package snow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/snowops/discovery-agent/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.New()
	cfg.InstanceURL = server.URL
	cfg.Username = "agent"
	cfg.Password = "hunter2"
	cfg.BackoffBaseSeconds = 0.001 // keep retry tests fast
	return NewClient(cfg, nil), server
}

func writeResult(w http.ResponseWriter, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": result})
}

func TestListSendsAuthAndParams(t *testing.T) {
	var gotAuth, gotQuery, gotFields, gotLimit string
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if ok {
			gotAuth = user + ":" + pass
		}
		gotQuery = r.URL.Query().Get("sysparm_query")
		gotFields = r.URL.Query().Get("sysparm_fields")
		gotLimit = r.URL.Query().Get("sysparm_limit")
		writeResult(w, []Record{{"sys_id": "a1"}})
	}))

	records, err := client.List(context.Background(), "discovery_status", ListOptions{
		Query:  NewQuery().Where("state", OpEquals, "Completed"),
		Fields: []string{"sys_id", "state"},
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "agent:hunter2", gotAuth)
	assert.Equal(t, "state=Completed", gotQuery)
	assert.Equal(t, "sys_id,state", gotFields)
	assert.Equal(t, "10", gotLimit)
}

func TestRetryExhaustionOnTransient(t *testing.T) {
	var calls atomic.Int64
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := client.List(context.Background(), "discovery_status", ListOptions{})
	require.Error(t, err)

	// Initial attempt plus exactly MaxRetries retries
	assert.Equal(t, int64(config.DefaultMaxRetries+1), calls.Load())

	// The terminal error stays classified transient so callers can tell
	// exhaustion from a permanent failure
	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.True(t, serr.Transient())
	assert.Equal(t, http.StatusServiceUnavailable, serr.Status)
}

func TestRateLimitRetried(t *testing.T) {
	var calls atomic.Int64
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeResult(w, []Record{})
	}))

	_, err := client.List(context.Background(), "discovery_status", ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), calls.Load())
}

func TestAuthFailureNeverRetried(t *testing.T) {
	var calls atomic.Int64
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "User Not Authenticated"},
		})
	}))

	_, err := client.List(context.Background(), "discovery_status", ListOptions{})
	require.Error(t, err)
	assert.Equal(t, int64(1), calls.Load())

	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, KindAuth, serr.Kind)
	assert.Equal(t, CodeAuthentication, serr.Code)
	assert.False(t, serr.Transient())
}

func TestCreateNeverRetried(t *testing.T) {
	var calls atomic.Int64
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.Create(context.Background(), "discovery_schedule", Record{"name": "nightly"})
	require.Error(t, err)
	assert.Equal(t, int64(1), calls.Load(), "a timed-out create may have landed; repeating it would duplicate")

	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.True(t, serr.Transient(), "still reported transient, caller decides")
}

func TestUpdateRetriedOnTransient(t *testing.T) {
	var calls atomic.Int64
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeResult(w, Record{"sys_id": "0123456789abcdef0123456789abcdef", "active": "true"})
	}))

	record, err := client.Update(context.Background(), "discovery_credential",
		"0123456789abcdef0123456789abcdef", Record{"active": "true"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
	assert.Equal(t, "true", record["active"])
}

func TestGetNotFound(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "No Record found"},
		})
	}))

	_, err := client.Get(context.Background(), "discovery_status", "0123456789abcdef0123456789abcdef", nil)
	require.Error(t, err)

	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, KindNotFound, serr.Kind)
	assert.Equal(t, CodeNotFound, serr.Code)
}

func TestGetRejectsBadSysID(t *testing.T) {
	var calls atomic.Int64
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	_, err := client.Get(context.Background(), "discovery_status", "not-a-sys-id", nil)
	require.Error(t, err)
	assert.Equal(t, int64(0), calls.Load(), "invalid sys_id must be rejected before any request")

	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, KindInvalidParameter, serr.Kind)
}

func TestListAllPaginates(t *testing.T) {
	// 250 records, default page size 100: expect pages of 100, 100, 50
	total := 250
	var offsets []int
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("sysparm_limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("sysparm_offset"))
		offsets = append(offsets, offset)

		var page []Record
		for i := offset; i < offset+limit && i < total; i++ {
			page = append(page, Record{"sys_id": strconv.Itoa(i)})
		}
		writeResult(w, page)
	}))

	records, err := client.ListAll(context.Background(), "discovery_log", ListOptions{}, 1000)
	require.NoError(t, err)
	assert.Len(t, records, total)
	assert.Equal(t, []int{0, 100, 200}, offsets)
}

func TestListAllRespectsMaxRecords(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("sysparm_limit"))
		var page []Record
		for i := 0; i < limit; i++ {
			page = append(page, Record{"sys_id": strconv.Itoa(i)})
		}
		writeResult(w, page)
	}))

	records, err := client.ListAll(context.Background(), "discovery_log", ListOptions{}, 150)
	require.NoError(t, err)
	assert.Len(t, records, 150, "pagination must stop at maxRecords even when the server has more")
}

func TestCount(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/api/now/stats/discovery_log")
		assert.Equal(t, "true", r.URL.Query().Get("sysparm_count"))
		writeResult(w, map[string]interface{}{"stats": map[string]string{"count": "42"}})
	}))

	count, err := client.Count(context.Background(), "discovery_log",
		NewQuery().Where("level", OpEquals, "Error"))
	require.NoError(t, err)
	assert.Equal(t, 42, count)
}

func TestMalformedBodyIsPermanent(t *testing.T) {
	var calls atomic.Int64
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))

	_, err := client.List(context.Background(), "discovery_status", ListOptions{})
	require.Error(t, err)
	assert.Equal(t, int64(1), calls.Load())

	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.False(t, serr.Transient())
}

func TestContextCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int64
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		cancel()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := client.List(ctx, "discovery_status", ListOptions{})
	require.Error(t, err)
	assert.Equal(t, int64(1), calls.Load(), "no retries once the context is cancelled")
}

func TestTestConnection(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/api/now/table/sys_properties")
		assert.Equal(t, "1", r.URL.Query().Get("sysparm_limit"))
		writeResult(w, []Record{{"name": "glide.buildname"}})
	}))

	require.NoError(t, client.TestConnection(context.Background()))
}
