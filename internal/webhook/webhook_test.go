package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derivia/orchepy/internal/automation"
)

func TestDispatch_RetriesOn5xx_ThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(2 * time.Second)
	action := automation.Action{
		Type: automation.ActionWebhook, URL: srv.URL, Method: "POST",
		Retry: &automation.RetryPolicy{Enabled: true, MaxAttempts: 2, DelayMS: 1},
	}
	err := d.Dispatch(context.Background(), action, []byte(`{}`), Responses{}, Envelope{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, attempts)
}

func TestDispatch_4xxIsTerminal_NoRetry(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	d := New(2 * time.Second)
	action := automation.Action{
		Type: automation.ActionWebhook, URL: srv.URL, Method: "POST", OnError: automation.OnErrorStop,
		Retry: &automation.RetryPolicy{Enabled: true, MaxAttempts: 5, DelayMS: 1},
	}
	err := d.Dispatch(context.Background(), action, []byte(`{}`), Responses{}, Envelope{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFailed)
	assert.EqualValues(t, 1, attempts)
}

func TestDispatch_OnErrorContinue_SwallowsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := New(2 * time.Second)
	action := automation.Action{
		Type: automation.ActionWebhook, URL: srv.URL, Method: "POST", OnError: automation.OnErrorContinue,
	}
	err := d.Dispatch(context.Background(), action, []byte(`{}`), Responses{}, Envelope{})
	assert.NoError(t, err)
}

func TestDispatch_FieldsPayload_RestrictsToSelectedPaths(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(2 * time.Second)
	action := automation.Action{
		Type: automation.ActionWebhook, URL: srv.URL, Method: "POST", Fields: []string{"data.v"},
	}
	caseEnvelope := []byte(`{"data":{"v":7}}`)
	err := d.Dispatch(context.Background(), action, caseEnvelope, Responses{}, Envelope{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"v":7}}`, string(gotBody))
}
