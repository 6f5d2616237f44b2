// Package gateway is the single egress point to the LLM provider. It owns
// call deadlines, retries, the circuit breaker, response caching, the
// in-flight bound, and the deterministic degraded responder.
package gateway

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/semaphore"
	"google.golang.org/api/googleapi"

	"github.com/jonathan/interview-engine/internal/config"
	"github.com/jonathan/interview-engine/internal/llm"
	"github.com/jonathan/interview-engine/internal/schemas"
)

// Request describes one structured completion.
type Request struct {
	Model          string
	SystemPrompt   string
	UserPrompt     string
	Temperature    float64
	MaxTokens      int
	ResponseSchema string // empty means free text; set means JSON output
}

// Response is the gateway's result envelope.
type Response struct {
	Content    string
	TokensUsed int
	Provider   string
	Degraded   bool
	Cached     bool
	Attempt    int
}

// Completer is what downstream components depend on. Tests substitute fakes.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Gateway implements Completer over an llm.Client.
type Gateway struct {
	client   llm.Client
	provider string

	model       string
	temperature float64
	maxTokens   int
	callTimeout time.Duration

	breaker  *breaker
	cache    *responseCache
	inFlight *semaphore.Weighted
}

// retryBudget is the elapsed-time limit under which a timed-out first
// attempt may still be retried.
const retryBudget = 5 * time.Second

// New creates a gateway around the given provider client.
func New(client llm.Client, cfg *config.Config) *Gateway {
	return &Gateway{
		client:      client,
		provider:    "gemini",
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		callTimeout: time.Duration(cfg.CallTimeoutMs) * time.Millisecond,
		breaker: newBreaker(
			cfg.BreakerFailsToOpen,
			60*time.Second,
			time.Duration(cfg.BreakerOpenMs)*time.Millisecond,
		),
		cache:    newResponseCache(time.Duration(cfg.GatewayCacheTTLMs) * time.Millisecond),
		inFlight: semaphore.NewWeighted(int64(cfg.GatewayMaxInFlight)),
	}
}

// Complete runs one completion with the gateway's full failure handling.
//
// Callers must not rely on identical outputs for identical inputs: the
// gateway may serve a recent cached response.
func (g *Gateway) Complete(ctx context.Context, req Request) (*Response, error) {
	g.applyDefaults(&req)

	key := cacheKey(req.Model, req.SystemPrompt, req.UserPrompt, req.Temperature)
	if content, ok := g.cache.get(key); ok {
		return &Response{
			Content:    content,
			TokensUsed: estimateTokens(content),
			Provider:   g.provider,
			Cached:     true,
		}, nil
	}

	if g.breaker.open() {
		return g.degraded(req)
	}

	if err := g.inFlight.Acquire(ctx, 1); err != nil {
		return nil, &Error{Kind: FailTimeout, Message: "cancelled waiting for gateway slot", Cause: err}
	}
	defer g.inFlight.Release(1)

	start := time.Now()
	var lastErr *Error
	for attempt := 1; attempt <= 2; attempt++ {
		content, err := g.callOnce(ctx, req)
		if err == nil {
			g.breaker.recordSuccess()
			if req.ResponseSchema != "" {
				repaired, repErr := schemas.Repair(req.ResponseSchema, content)
				if repErr != nil {
					log.Printf("[gateway] malformed LLM output, repair failed: %v", repErr)
					return nil, &Error{Kind: FailMalformed, Message: "LLM output does not match schema", Cause: repErr}
				}
				content = repaired
			}
			g.cache.put(key, content)
			return &Response{
				Content:    content,
				TokensUsed: estimateTokens(content),
				Provider:   g.provider,
				Attempt:    attempt,
			}, nil
		}

		lastErr = classify(err)
		if lastErr.Kind != FailQuota {
			g.breaker.recordFailure()
		}
		if attempt == 1 && g.shouldRetry(lastErr, time.Since(start)) {
			continue
		}
		break
	}

	// The breaker may have just opened; serve schema calls degraded rather
	// than failing the operation.
	if g.breaker.open() && req.ResponseSchema != "" {
		return g.degraded(req)
	}
	return nil, lastErr
}

func (g *Gateway) applyDefaults(req *Request) {
	if req.Model == "" {
		req.Model = g.model
	}
	if req.Temperature == 0 {
		req.Temperature = g.temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = g.maxTokens
	}
}

func (g *Gateway) callOnce(ctx context.Context, req Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	return g.client.Generate(callCtx, llm.Request{
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		UserPrompt:   req.UserPrompt,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		JSONOutput:   req.ResponseSchema != "",
	})
}

// shouldRetry permits one extra attempt for transient failures, and for
// timeouts only when the first attempt failed fast.
func (g *Gateway) shouldRetry(err *Error, elapsed time.Duration) bool {
	switch err.Kind {
	case FailTransient:
		return true
	case FailTimeout:
		return elapsed < retryBudget
	}
	return false
}

// degraded serves a schema-shaped deterministic response while the provider
// is unreachable. Calls without a schema fail fast.
func (g *Gateway) degraded(req Request) (*Response, error) {
	if req.ResponseSchema == "" {
		return nil, &Error{Kind: FailUnavailable, Message: "circuit breaker open"}
	}
	content, err := degradedResponse(req.ResponseSchema)
	if err != nil {
		return nil, &Error{Kind: FailUnavailable, Message: "degraded responder failed", Cause: err}
	}
	return &Response{
		Content:  content,
		Provider: "degraded",
		Degraded: true,
	}, nil
}

// classify maps provider errors onto the gateway failure taxonomy.
func classify(err error) *Error {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: FailTimeout, Message: "LLM call deadline exceeded", Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: FailTimeout, Message: "LLM call cancelled", Cause: err}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return &Error{Kind: FailQuota, Message: "provider quota exceeded", Cause: err}
		case apiErr.Code == 401 || apiErr.Code == 403:
			return &Error{Kind: FailAuth, Message: "provider rejected credentials", Cause: err}
		case apiErr.Code >= 500:
			return &Error{Kind: FailTransient, Message: "provider server error", Cause: err}
		}
	}

	return &Error{Kind: FailTransient, Message: "LLM call failed", Cause: err}
}

// estimateTokens is a rough content-length heuristic; the provider client
// does not surface usage metadata through our interface.
func estimateTokens(content string) int {
	return len(content) / 4
}
