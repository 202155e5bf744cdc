// Package webhook performs the HTTP side-effects of a webhook Action:
// payload selection, dispatch with retry/backoff, response capture, and the
// stop/continue error policy.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/derivia/orchepy/internal/automation"
	"github.com/derivia/orchepy/internal/logx"
	"github.com/derivia/orchepy/internal/orcherr"
	"github.com/derivia/orchepy/internal/path"
)

// ErrFailed is wrapped into the error returned when a webhook with
// on_error=stop exhausts its retries.
var ErrFailed = fmt.Errorf("webhook action failed")

// Envelope carries the default payload fields, built by the interpreter from
// the current evaluation context.
type Envelope struct {
	CaseID        string          `json:"case_id"`
	WorkflowID    string          `json:"workflow_id"`
	CurrentPhase  string          `json:"current_phase"`
	PreviousPhase *string         `json:"previous_phase"`
	Data          json.RawMessage `json:"data"`
	Metadata      json.RawMessage `json:"metadata"`
	Trigger       string          `json:"trigger"`
	FromPhase     string          `json:"from_phase"`
	ToPhase       string          `json:"to_phase"`
}

// Dispatcher performs webhook actions over HTTP.
type Dispatcher struct {
	client  *http.Client
	timeout time.Duration
}

// New builds a Dispatcher with the given per-attempt timeout (a timeout
// 30s per attempt by default, configurable globally).
func New(timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Responses maps action id -> last captured response body, used for
// use_response_from chaining within one transition.
type Responses map[string]interface{}

// Dispatch builds the payload for action, sends it with retry per
// action.Retry, captures the response under action.ID if present, and
// returns an error only when on_error=stop and every attempt failed.
func (d *Dispatcher) Dispatch(ctx context.Context, action automation.Action, caseEnvelope []byte, responses Responses, def Envelope) error {
	payload, err := d.buildPayload(action, caseEnvelope, responses, def)
	if err != nil {
		return fmt.Errorf("%w: building payload: %v", ErrFailed, err)
	}

	maxAttempts := 1
	delay := time.Duration(0)
	if action.Retry != nil && action.Retry.Enabled {
		maxAttempts = action.Retry.MaxAttempts
		if maxAttempts < 1 {
			maxAttempts = 1
		}
		delay = time.Duration(action.Retry.DelayMS) * time.Millisecond
	}

	if delay <= 0 {
		// retry.NewConstant panics on a non-positive duration.
		delay = time.Nanosecond
	}
	backoff := retry.WithMaxRetries(uint64(maxAttempts-1), retry.NewConstant(delay))

	var respBody []byte
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		body, status, sendErr := d.send(ctx, action, payload)
		if sendErr != nil {
			logx.FromContext(ctx).Warn("webhook attempt failed", "action", action.Name, "attempt", attempt, "error", sendErr)
			return retry.RetryableError(sendErr)
		}
		if status >= 500 {
			sendErr = fmt.Errorf("webhook returned status %d", status)
			logx.FromContext(ctx).Warn("webhook attempt failed", "action", action.Name, "attempt", attempt, "status", status)
			return retry.RetryableError(sendErr)
		}
		if status >= 400 {
			// 4xx is terminal — not retryable.
			return fmt.Errorf("webhook returned status %d", status)
		}
		respBody = body
		return nil
	})

	if err != nil {
		if action.OnError == automation.OnErrorContinue {
			logx.FromContext(ctx).Info("webhook continuing after failure", "action", action.Name, "error", err)
			return nil
		}
		failed := fmt.Errorf("%w: %s: %v", ErrFailed, action.Name, err)
		return orcherr.Wrap(orcherr.KindWebhookFailed,
			fmt.Sprintf("webhook action %q (id=%q) failed", action.Name, action.ID), failed)
	}

	if action.ID != "" {
		responses[action.ID] = decodeResponse(respBody)
	}
	return nil
}

func (d *Dispatcher) send(ctx context.Context, action automation.Action, payload []byte) ([]byte, int, error) {
	method := action.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, action.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range action.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return body, resp.StatusCode, nil
}

func (d *Dispatcher) buildPayload(action automation.Action, caseEnvelope []byte, responses Responses, def Envelope) ([]byte, error) {
	var obj map[string]interface{}

	switch {
	case len(action.Body) > 0:
		if err := json.Unmarshal(action.Body, &obj); err != nil {
			return action.Body, nil
		}
	case len(action.Fields) > 0:
		obj = make(map[string]interface{}, len(action.Fields))
		for _, f := range action.Fields {
			val := path.Get(caseEnvelope, f)
			obj = setNested(obj, f, val)
		}
	default:
		raw, err := json.Marshal(def)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
	}

	if action.UseResponseFrom != "" {
		if resp, ok := responses[action.UseResponseFrom]; ok {
			if obj == nil {
				obj = map[string]interface{}{}
			}
			obj["previous_response"] = resp
		}
	}

	return json.Marshal(obj)
}

// setNested assigns value into obj at the dotted key path, creating
// intermediate maps, mirroring the {"data":{"v":...}} shape a
// webhook-on-enter scenario expects for fields=["data.v"].
func setNested(obj map[string]interface{}, dotted string, value interface{}) map[string]interface{} {
	segs := splitDotted(dotted)
	cur := obj
	for i, seg := range segs {
		if i == len(segs)-1 {
			cur[seg] = value
			break
		}
		next, ok := cur[seg].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			cur[seg] = next
		}
		cur = next
	}
	return obj
}

func splitDotted(dotted string) []string {
	var segs []string
	cur := ""
	for _, r := range dotted {
		if r == '.' {
			segs = append(segs, cur)
			cur = ""
			continue
		}
		cur += string(r)
	}
	return append(segs, cur)
}

func decodeResponse(body []byte) interface{} {
	var v interface{}
	if err := json.Unmarshal(body, &v); err == nil {
		return v
	}
	return string(body)
}
