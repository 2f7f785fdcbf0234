// ABOUTME: Dispatches assistant-requested tool calls to internal REST services
// ABOUTME: Tool failures become JSON error payloads so one call cannot sink a batch

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/pathwise/chat-gateway/internal/assistant"
)

// Tool names the assistant may request.
const (
	ToolJobListings           = "get_job_listings"
	ToolCourseRecommendations = "get_course_recommendations"
)

// Credentials carries the originating caller's authentication context,
// forwarded unchanged to the internal services.
type Credentials struct {
	BearerToken string
	Cookie      string
}

// Config holds the dispatcher's endpoints and limits.
type Config struct {
	JobListingsURL           string
	CourseRecommendationsURL string
	JobLimit                 int // max job listings per tool result
	RequestTimeout           time.Duration
}

// Dispatcher resolves tool calls by name and executes them over HTTP.
type Dispatcher struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher. A zero JobLimit defaults to 3 and a
// zero RequestTimeout defaults to 10s.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.JobLimit <= 0 {
		cfg.JobLimit = 3
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Dispatcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		logger: slog.Default().With("component", "tools"),
	}
}

// jobListingArgs are the arguments the assistant supplies for a job search.
type jobListingArgs struct {
	Search   string `json:"search"`
	Location string `json:"location"`
	Limit    int    `json:"limit"`
}

// courseArgs are the arguments for a course recommendation lookup.
type courseArgs struct {
	Topic string `json:"topic"`
	Limit int    `json:"limit"`
}

// Dispatch executes one tool call and always returns a JSON string.
// Unknown tool names and downstream failures produce a JSON error object
// rather than a Go error, so the caller can submit the payload as-is.
func (d *Dispatcher) Dispatch(ctx context.Context, creds Credentials, call assistant.ToolCall) string {
	var result string
	var err error

	switch call.Name {
	case ToolJobListings:
		result, err = d.jobListings(ctx, creds, call.Arguments)
	case ToolCourseRecommendations:
		result, err = d.courseRecommendations(ctx, creds, call.Arguments)
	default:
		return errorPayload(fmt.Sprintf("unknown tool: %s", call.Name))
	}

	if err != nil {
		d.logger.Error("tool call failed",
			"tool", call.Name,
			"tool_call_id", call.ID,
			"error", err)
		return errorPayload(err.Error())
	}
	return result
}

// DispatchAll executes a batch of tool calls concurrently and returns one
// output per call, in input order. Individual failures surface as JSON error
// payloads in their slot; sibling calls are unaffected.
func (d *Dispatcher) DispatchAll(ctx context.Context, creds Credentials, calls []assistant.ToolCall) []assistant.ToolOutput {
	outputs := make([]assistant.ToolOutput, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call assistant.ToolCall) {
			defer wg.Done()
			outputs[i] = assistant.ToolOutput{
				ToolCallID: call.ID,
				Output:     d.Dispatch(ctx, creds, call),
			}
		}(i, call)
	}
	wg.Wait()

	return outputs
}

// jobListings queries the job-listing search service.
func (d *Dispatcher) jobListings(ctx context.Context, creds Credentials, arguments string) (string, error) {
	var args jobListingArgs
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", fmt.Errorf("parsing tool arguments: %w", err)
		}
	}
	if args.Limit <= 0 || args.Limit > d.cfg.JobLimit {
		args.Limit = d.cfg.JobLimit
	}

	params := url.Values{}
	if args.Search != "" {
		params.Set("search", args.Search)
	}
	if args.Location != "" {
		params.Set("location", args.Location)
	}
	params.Set("limit", strconv.Itoa(args.Limit))

	return d.get(ctx, creds, d.cfg.JobListingsURL, params)
}

// courseRecommendations queries the course recommendation service.
func (d *Dispatcher) courseRecommendations(ctx context.Context, creds Credentials, arguments string) (string, error) {
	var args courseArgs
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", fmt.Errorf("parsing tool arguments: %w", err)
		}
	}

	params := url.Values{}
	if args.Topic != "" {
		params.Set("topic", args.Topic)
	}
	if args.Limit > 0 {
		params.Set("limit", strconv.Itoa(args.Limit))
	}

	return d.get(ctx, creds, d.cfg.CourseRecommendationsURL, params)
}

// get performs an authenticated GET and returns the response body.
func (d *Dispatcher) get(ctx context.Context, creds Credentials, baseURL string, params url.Values) (string, error) {
	reqURL := baseURL
	if encoded := params.Encode(); encoded != "" {
		reqURL = baseURL + "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	if creds.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+creds.BearerToken)
	}
	if creds.Cookie != "" {
		req.Header.Set("Cookie", creds.Cookie)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("service returned status %d", resp.StatusCode)
	}
	return string(body), nil
}

// errorPayload builds the JSON error object returned for failed tool calls.
func errorPayload(message string) string {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return `{"error":"tool execution failed"}`
	}
	return string(payload)
}
