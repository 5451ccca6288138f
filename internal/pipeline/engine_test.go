package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/temirov/llm-csv/internal/pipeline"
)

type scriptedStep struct {
	outputs []string
	err     error
}

// scriptedInvoker replays one step per call; calls past the script repeat the last step.
type scriptedInvoker struct {
	mu    sync.Mutex
	steps []scriptedStep
	sizes []int
}

func (s *scriptedInvoker) InvokeBatch(ctx context.Context, requests []pipeline.LLMRequest) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := len(s.sizes)
	s.sizes = append(s.sizes, len(requests))
	if index >= len(s.steps) {
		index = len(s.steps) - 1
	}
	step := s.steps[index]
	return step.outputs, step.err
}

type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

type throttled struct{}

func (throttled) Error() string     { return "provider said no" }
func (throttled) RateLimited() bool { return true }

// statusError mimics an HTTP failure that knows its own status code.
type statusError struct{ code int }

func (e statusError) Error() string     { return fmt.Sprintf("http error %d", e.code) }
func (e statusError) RateLimited() bool { return e.code == 429 }

func requestsOf(n int) []pipeline.LLMRequest {
	out := make([]pipeline.LLMRequest, n)
	for i := range out {
		out[i] = pipeline.LLMRequest{UserPrompt: "row"}
	}
	return out
}

func TestControllerProcess(t *testing.T) {
	testCases := []struct {
		name            string
		size            int
		steps           []scriptedStep
		policy          pipeline.RetryPolicy
		expectedRecords int
		expectedDropped int
		expectedCalls   []int
		expectedDelays  []time.Duration
		exhausted       bool
	}{
		{
			name:            "all items parse on first call",
			size:            2,
			steps:           []scriptedStep{{outputs: []string{`{"id":1}`, "```json\n{\"id\":2}\n```"}}},
			policy:          pipeline.RetryPolicy{MaxBatchRetries: 3, MaxItemRetries: 3, BaseDelay: time.Second},
			expectedRecords: 2,
			expectedCalls:   []int{2},
		},
		{
			name: "batch error then success backs off exponentially",
			size: 1,
			steps: []scriptedStep{
				{err: errors.New("connection reset")},
				{err: errors.New("connection reset")},
				{outputs: []string{`{"id":1}`}},
			},
			policy:          pipeline.RetryPolicy{MaxBatchRetries: 3, MaxItemRetries: 3, BaseDelay: time.Second},
			expectedRecords: 1,
			expectedCalls:   []int{1, 1, 1},
			expectedDelays:  []time.Duration{time.Second, 2 * time.Second},
		},
		{
			name:            "exhausted batch yields nothing",
			size:            3,
			steps:           []scriptedStep{{err: errors.New("boom")}},
			policy:          pipeline.RetryPolicy{MaxBatchRetries: 2, MaxItemRetries: 3, BaseDelay: time.Second},
			expectedDropped: 3,
			expectedCalls:   []int{3, 3},
			expectedDelays:  []time.Duration{time.Second},
			exhausted:       true,
		},
		{
			name: "rate limit uses its own base delay",
			size: 1,
			steps: []scriptedStep{
				{err: throttled{}},
				{err: errors.New("Error code: 429 - Rate limit reached")},
				{outputs: []string{`{"id":1}`}},
			},
			policy:          pipeline.RetryPolicy{MaxBatchRetries: 3, MaxItemRetries: 1, BaseDelay: time.Second, RateLimitBaseDelay: 10 * time.Second},
			expectedRecords: 1,
			expectedCalls:   []int{1, 1, 1},
			expectedDelays:  []time.Duration{10 * time.Second, 20 * time.Second},
		},
		{
			name: "bad item recovered by single retry",
			size: 3,
			steps: []scriptedStep{
				{outputs: []string{`{"id":1}`, `not json`, `{"id":3}`}},
				{outputs: []string{`{"id":2}`}},
			},
			policy:          pipeline.RetryPolicy{MaxBatchRetries: 3, MaxItemRetries: 3},
			expectedRecords: 3,
			expectedCalls:   []int{3, 1},
		},
		{
			name: "bad item dropped after item retries",
			size: 2,
			steps: []scriptedStep{
				{outputs: []string{`{"id":1}`, `[1,2]`}},
				{outputs: []string{`still bad`}},
			},
			policy:          pipeline.RetryPolicy{MaxBatchRetries: 3, MaxItemRetries: 2},
			expectedRecords: 1,
			expectedDropped: 1,
			expectedCalls:   []int{2, 1, 1},
		},
		{
			name: "zero item retries drops immediately",
			size: 2,
			steps: []scriptedStep{
				{outputs: []string{`{"id":1}`, ``}},
			},
			policy:          pipeline.RetryPolicy{MaxBatchRetries: 3, MaxItemRetries: 0},
			expectedRecords: 1,
			expectedDropped: 1,
			expectedCalls:   []int{2},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			invoker := &scriptedInvoker{steps: testCase.steps}
			recorder := &sleepRecorder{}
			controller := pipeline.Controller{
				Invoker: invoker,
				Policy:  testCase.policy,
				Sleep:   recorder.sleep,
			}
			var lines []string
			outcome := controller.Process(context.Background(), requestsOf(testCase.size), func(line string) {
				lines = append(lines, line)
			})

			if len(outcome.Records) != testCase.expectedRecords {
				t.Fatalf("records: expected %d, got %d", testCase.expectedRecords, len(outcome.Records))
			}
			if outcome.Dropped != testCase.expectedDropped {
				t.Fatalf("dropped: expected %d, got %d", testCase.expectedDropped, outcome.Dropped)
			}
			if outcome.Exhausted != testCase.exhausted {
				t.Fatalf("exhausted: expected %v, got %v", testCase.exhausted, outcome.Exhausted)
			}
			if !equalInts(invoker.sizes, testCase.expectedCalls) {
				t.Fatalf("calls: expected %v, got %v", testCase.expectedCalls, invoker.sizes)
			}
			if !equalDurations(recorder.delays, testCase.expectedDelays) {
				t.Fatalf("delays: expected %v, got %v", testCase.expectedDelays, recorder.delays)
			}
			if testCase.expectedDropped > 0 && len(lines) == 0 {
				t.Fatalf("expected a notification for dropped rows")
			}
		})
	}
}

func TestControllerPreservesOrder(t *testing.T) {
	invoker := &scriptedInvoker{steps: []scriptedStep{
		{outputs: []string{`{"id":"a"}`, `oops`, `{"id":"c"}`}},
		{outputs: []string{`{"id":"b"}`}},
	}}
	controller := pipeline.Controller{Invoker: invoker, Policy: pipeline.RetryPolicy{MaxBatchRetries: 1, MaxItemRetries: 1}}
	outcome := controller.Process(context.Background(), requestsOf(3), nil)
	var ids []string
	for _, record := range outcome.Records {
		ids = append(ids, record["id"].(string))
	}
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Fatalf("unexpected order %v", ids)
	}
}

func TestControllerStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	invoker := &scriptedInvoker{steps: []scriptedStep{{err: errors.New("boom")}}}
	controller := pipeline.Controller{
		Invoker: invoker,
		Policy:  pipeline.RetryPolicy{MaxBatchRetries: 5, BaseDelay: time.Hour},
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}
	outcome := controller.Process(ctx, requestsOf(2), nil)
	if !outcome.Interrupted {
		t.Fatalf("expected interrupted outcome")
	}
	if len(invoker.sizes) != 1 {
		t.Fatalf("expected one call before stop, got %d", len(invoker.sizes))
	}
	if len(outcome.Records) != 0 {
		t.Fatalf("expected no records, got %d", len(outcome.Records))
	}
}

func TestControllerRequiredFields(t *testing.T) {
	decoder, err := pipeline.NewRecordDecoder([]string{"id", "score"})
	if err != nil {
		t.Fatalf("NewRecordDecoder: %v", err)
	}
	invoker := &scriptedInvoker{steps: []scriptedStep{
		{outputs: []string{`{"id":1,"score":2}`, `{"id":2}`}},
		{outputs: []string{`{"id":2,"score":5}`}},
	}}
	controller := pipeline.Controller{Invoker: invoker, Decoder: decoder, Policy: pipeline.RetryPolicy{MaxBatchRetries: 1, MaxItemRetries: 1}}
	outcome := controller.Process(context.Background(), requestsOf(2), nil)
	if len(outcome.Records) != 2 || outcome.Dropped != 0 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
}

func TestIsRateLimit(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "typed", err: throttled{}, expected: true},
		{name: "message", err: errors.New("RateLimitError: slow down"), expected: true},
		{name: "too many requests", err: errors.New("429 Too Many Requests"), expected: true},
		{name: "generic", err: errors.New("connection refused"), expected: false},
		{name: "typed not throttled", err: statusError{code: 502}, expected: false},
		{name: "joined with throttled leaf", err: errors.Join(statusError{code: 502}, statusError{code: 429}, statusError{code: 429}), expected: true},
		{name: "wrapped join", err: fmt.Errorf("invoke batch: %w", errors.Join(statusError{code: 500}, statusError{code: 429})), expected: true},
		{name: "typed false with throttling message", err: errors.Join(statusError{code: 502}, errors.New("Rate limit reached")), expected: true},
		{name: "joined without throttling", err: errors.Join(statusError{code: 502}, statusError{code: 503}), expected: false},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := pipeline.IsRateLimit(testCase.err); got != testCase.expected {
				t.Fatalf("expected %v, got %v", testCase.expected, got)
			}
		})
	}
}

func TestRetryPolicyDelays(t *testing.T) {
	testCases := []struct {
		name     string
		policy   pipeline.RetryPolicy
		delay    func(pipeline.RetryPolicy, int) time.Duration
		attempt  int
		expected time.Duration
	}{
		{
			name:     "batch doubles",
			policy:   pipeline.RetryPolicy{BaseDelay: 2 * time.Second},
			delay:    pipeline.RetryPolicy.BatchDelay,
			attempt:  3,
			expected: 8 * time.Second,
		},
		{
			name:     "rate limit uses its own base",
			policy:   pipeline.RetryPolicy{BaseDelay: 2 * time.Second, RateLimitBaseDelay: 5 * time.Second},
			delay:    pipeline.RetryPolicy.RateLimitDelay,
			attempt:  2,
			expected: 10 * time.Second,
		},
		{
			name:     "first attempt waits the base",
			policy:   pipeline.RetryPolicy{BaseDelay: 2 * time.Second},
			delay:    pipeline.RetryPolicy.BatchDelay,
			attempt:  1,
			expected: 2 * time.Second,
		},
		{
			name:     "default cap",
			policy:   pipeline.RetryPolicy{BaseDelay: 2 * time.Second},
			delay:    pipeline.RetryPolicy.BatchDelay,
			attempt:  20,
			expected: pipeline.DefaultMaxDelay,
		},
		{
			name:     "configured cap",
			policy:   pipeline.RetryPolicy{BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second},
			delay:    pipeline.RetryPolicy.BatchDelay,
			attempt:  6,
			expected: 30 * time.Second,
		},
		{
			name:     "large attempt does not overflow",
			policy:   pipeline.RetryPolicy{BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second},
			delay:    pipeline.RetryPolicy.BatchDelay,
			attempt:  100,
			expected: 30 * time.Second,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := testCase.delay(testCase.policy, testCase.attempt); got != testCase.expected {
				t.Fatalf("expected %v, got %v", testCase.expected, got)
			}
		})
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalDurations(a, b []time.Duration) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
