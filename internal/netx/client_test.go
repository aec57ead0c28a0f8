package netx

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilawa-app/tilawa/internal/testutil"
)

type payload struct {
	Code int    `json:"code"`
	Data string `json:"data"`
}

func newTestClient(retries int, policy Policy) *Client {
	exec := NewExecutor(RetryOptions{MaxRetries: retries, RetryDelay: time.Millisecond, Policy: policy})
	return NewClient(2*time.Second, exec, "tilawa-test")
}

func TestGetJSON_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := testutil.NewHTTPServerT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tilawa-test", r.Header.Get("User-Agent"))
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"code":200,"data":"ok"}`))
	}))
	defer srv.Close()

	var got payload
	require.NoError(t, newTestClient(3, RetryTransient).GetJSON(context.Background(), srv.URL, &got))
	assert.Equal(t, "ok", got.Data)
	assert.Equal(t, int32(3), hits.Load())
}

func TestGetJSON_NotFoundIsTerminal(t *testing.T) {
	var hits atomic.Int32
	srv := testutil.NewHTTPServerT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	var got payload
	err := newTestClient(3, RetryTransient).GetJSON(context.Background(), srv.URL, &got)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindClient, fe.Kind)
	assert.Equal(t, http.StatusNotFound, fe.Status)
	assert.Equal(t, int32(1), hits.Load())
}

func TestGetJSON_DecodeError(t *testing.T) {
	srv := testutil.NewHTTPServerT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	var got payload
	err := newTestClient(0, RetryAll).GetJSON(context.Background(), srv.URL, &got)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindDecode, fe.Kind)
}

func TestGetJSON_RetryAfterHeaderParsed(t *testing.T) {
	var hits atomic.Int32
	srv := testutil.NewHTTPServerT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"code":200,"data":"late"}`))
	}))
	defer srv.Close()

	var got payload
	require.NoError(t, newTestClient(1, RetryTransient).GetJSON(context.Background(), srv.URL, &got))
	assert.Equal(t, "late", got.Data)
}

func TestGetJSON_UnreachableHost(t *testing.T) {
	srv := testutil.NewHTTPServerT(t, http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	var got payload
	err := newTestClient(1, RetryTransient).GetJSON(context.Background(), url, &got)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindNetwork, fe.Kind)
	assert.Equal(t, 2, fe.Attempts)
	assert.True(t, fe.Transient())
}
