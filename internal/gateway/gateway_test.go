package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/jonathan/interview-engine/internal/config"
	"github.com/jonathan/interview-engine/internal/llm"
)

const questionSchema = `{
  "type": "object",
  "required": ["topic", "skillTags", "difficulty", "text"],
  "properties": {
    "topic": {"type": "string", "minLength": 1},
    "skillTags": {"type": "array", "items": {"type": "string"}, "minItems": 1},
    "difficulty": {"type": "integer", "minimum": 1, "maximum": 5},
    "text": {"type": "string", "minLength": 1}
  }
}`

// fakeClient scripts llm.Client responses for the gateway.
type fakeClient struct {
	outputs []string
	errs    []error
	calls   int
}

func (f *fakeClient) Generate(_ context.Context, _ llm.Request) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.outputs) {
		return f.outputs[i], nil
	}
	return "", errors.New("script exhausted")
}

func (f *fakeClient) Close() error { return nil }

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Dev = true
	return &cfg
}

func TestComplete_RepairsFencedOutput(t *testing.T) {
	client := &fakeClient{outputs: []string{
		"```json\n{\"topic\": \"goroutines\", \"skillTags\": [\"Go\"], \"difficulty\": 3, \"text\": \"Explain goroutines.\"}\n```",
	}}
	gw := New(client, testConfig())

	resp, err := gw.Complete(context.Background(), Request{
		SystemPrompt:   "sys",
		UserPrompt:     "user",
		ResponseSchema: questionSchema,
	})
	require.NoError(t, err)
	assert.False(t, resp.Degraded)
	assert.Equal(t, 1, resp.Attempt)

	var q map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Content), &q))
	assert.Equal(t, "goroutines", q["topic"])
}

func TestComplete_ServesCachedResponse(t *testing.T) {
	client := &fakeClient{outputs: []string{
		`{"topic": "go", "skillTags": ["Go"], "difficulty": 3, "text": "q"}`,
	}}
	gw := New(client, testConfig())
	req := Request{SystemPrompt: "sys", UserPrompt: "same prompt", ResponseSchema: questionSchema}

	first, err := gw.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := gw.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, 1, client.calls)
}

func TestComplete_RetriesTransientFailure(t *testing.T) {
	client := &fakeClient{
		errs:    []error{&googleapi.Error{Code: 503}, nil},
		outputs: []string{"", `{"topic": "go", "skillTags": ["Go"], "difficulty": 3, "text": "q"}`},
	}
	gw := New(client, testConfig())

	resp, err := gw.Complete(context.Background(), Request{
		UserPrompt:     "retry me",
		ResponseSchema: questionSchema,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Attempt)
	assert.Equal(t, 2, client.calls)
}

func TestComplete_QuotaFailsWithoutRetry(t *testing.T) {
	client := &fakeClient{errs: []error{&googleapi.Error{Code: 429}}}
	gw := New(client, testConfig())

	_, err := gw.Complete(context.Background(), Request{UserPrompt: "quota"})
	require.Error(t, err)

	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, FailQuota, gerr.Kind)
	assert.True(t, gerr.Retryable())
	assert.Equal(t, 1, client.calls)
	// Quota failures must not trip the breaker.
	assert.False(t, gw.breaker.open())
}

func TestComplete_OpenBreakerServesDegraded(t *testing.T) {
	client := &fakeClient{}
	gw := New(client, testConfig())
	gw.breaker.trip()

	resp, err := gw.Complete(context.Background(), Request{
		UserPrompt:     "degrade me",
		ResponseSchema: questionSchema,
	})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, "degraded", resp.Provider)
	assert.Equal(t, 0, client.calls)

	// The synthesized document conforms to the schema.
	var q struct {
		Topic      string   `json:"topic"`
		SkillTags  []string `json:"skillTags"`
		Difficulty int      `json:"difficulty"`
		Text       string   `json:"text"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Content), &q))
	assert.Equal(t, "unavailable", q.Topic)
	assert.Len(t, q.SkillTags, 1)
	assert.Equal(t, 1, q.Difficulty)
}

func TestComplete_OpenBreakerFailsFreeTextCalls(t *testing.T) {
	gw := New(&fakeClient{}, testConfig())
	gw.breaker.trip()

	_, err := gw.Complete(context.Background(), Request{UserPrompt: "no schema"})
	require.Error(t, err)

	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, FailUnavailable, gerr.Kind)
}

func TestComplete_MalformedOutputFails(t *testing.T) {
	// Missing the numeric difficulty: repair must refuse to invent it.
	client := &fakeClient{outputs: []string{
		`{"topic": "go", "skillTags": ["Go"], "text": "q"}`,
	}}
	gw := New(client, testConfig())

	_, err := gw.Complete(context.Background(), Request{
		UserPrompt:     "malformed",
		ResponseSchema: questionSchema,
	})
	require.Error(t, err)

	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, FailMalformed, gerr.Kind)
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := newBreaker(3, time.Minute, time.Minute)

	b.recordFailure()
	b.recordFailure()
	assert.False(t, b.open())

	b.recordFailure()
	assert.True(t, b.open())
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := newBreaker(3, time.Minute, time.Minute)

	b.recordFailure()
	b.recordFailure()
	b.recordSuccess()
	b.recordFailure()
	assert.False(t, b.open())
}

func TestCacheKey_RoundsTemperature(t *testing.T) {
	assert.Equal(t, cacheKey("m", "s", "u", 0.41), cacheKey("m", "s", "u", 0.44))
	assert.NotEqual(t, cacheKey("m", "s", "u", 0.4), cacheKey("m", "s", "u", 0.5))
	assert.NotEqual(t, cacheKey("m", "s", "u", 0.4), cacheKey("m2", "s", "u", 0.4))
}

func TestResponseCache_Expiry(t *testing.T) {
	c := newResponseCache(10 * time.Millisecond)
	c.put("k", "v")

	got, ok := c.get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.get("k")
	assert.False(t, ok)
}

func TestClassify_Taxonomy(t *testing.T) {
	assert.Equal(t, FailTimeout, classify(context.DeadlineExceeded).Kind)
	assert.Equal(t, FailQuota, classify(&googleapi.Error{Code: 429}).Kind)
	assert.Equal(t, FailAuth, classify(&googleapi.Error{Code: 401}).Kind)
	assert.Equal(t, FailAuth, classify(&googleapi.Error{Code: 403}).Kind)
	assert.Equal(t, FailTransient, classify(&googleapi.Error{Code: 500}).Kind)
	assert.Equal(t, FailTransient, classify(errors.New("mystery")).Kind)
}
