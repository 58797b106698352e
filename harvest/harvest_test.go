package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/crowdin/context-harvester/aicontext"
	"github.com/crowdin/context-harvester/chunk"
	"github.com/crowdin/context-harvester/crowdin"
	"github.com/crowdin/context-harvester/prompt"
	"github.com/crowdin/context-harvester/provider"
)

func byteCount(text string) int { return len(text) }

// batchMock returns one scripted extraction response per call, in
// order, and records how many calls were made.
type batchMock struct {
	calls     atomic.Int64
	responses []batchReply
}

type batchReply struct {
	contexts map[int64]string
	err      error
}

func (m *batchMock) Chat(_ context.Context, _ provider.ChatRequest) (*provider.ChatResponse, error) {
	idx := int(m.calls.Add(1)) - 1
	if idx >= len(m.responses) {
		return &provider.ChatResponse{}, nil
	}
	reply := m.responses[idx]
	if reply.err != nil {
		return nil, reply.err
	}

	type entry struct {
		ID      int64  `json:"id"`
		Context string `json:"context"`
	}
	var entries []entry
	for id, ctx := range reply.contexts {
		entries = append(entries, entry{ID: id, Context: ctx})
	}
	args, _ := json.Marshal(map[string]any{"contexts": entries})
	return &provider.ChatResponse{
		ToolCalls:  []provider.ToolCall{{ID: "c", Name: provider.ToolSetContext, Arguments: args}},
		TokensUsed: 10,
	}, nil
}

func defaultOpts() Options {
	return Options{
		Budget: chunk.Budget{ContextWindow: 100000, MaxOutput: 1000},
		Count:  byteCount,
	}
}

func TestBatchScreeningSendsOnlyMatchingStrings(t *testing.T) {
	strs := []*crowdin.String{
		{ID: 1, Text: "Save", Identifier: "btn.save"},
		{ID: 2, Text: "Cancel", Identifier: "btn.cancel"},
	}
	containers := []Container{{Name: "ui.json", Strings: strs}}
	files := []chunk.FileContent{{Path: "app.go", Content: `button("btn.save")`}}

	mock := &batchMock{responses: []batchReply{
		{contexts: map[int64]string{1: "Used as a save button label"}},
	}}
	opts := defaultOpts()
	opts.Screen = prompt.ScreenKeys

	result, err := New(mock, opts).Run(context.Background(), containers, files)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := mock.calls.Load(); got != 1 {
		t.Fatalf("provider calls = %d, want 1", got)
	}
	if got := result.Records[0].Extracted; len(got) != 1 || got[0] != "Used as a save button label" {
		t.Fatalf("string 1 extracted = %v", got)
	}
	if len(result.Records[1].Extracted) != 0 {
		t.Fatalf("string 2 should be untouched, got %v", result.Records[1].Extracted)
	}
}

func TestBatchUnknownIDDropped(t *testing.T) {
	containers := []Container{{Name: "f", Strings: []*crowdin.String{{ID: 1, Text: "Save"}}}}
	files := []chunk.FileContent{{Path: "a.go", Content: "Save"}}

	mock := &batchMock{responses: []batchReply{
		{contexts: map[int64]string{1: "real", 999: "phantom"}},
	}}
	result, err := New(mock, defaultOpts()).Run(context.Background(), containers, files)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(result.Records))
	}
	if got := result.Records[0].Extracted; len(got) != 1 || got[0] != "real" {
		t.Fatalf("extracted = %v, want only the known id's context", got)
	}
}

func TestBatchEmptyStringsShortCircuits(t *testing.T) {
	mock := &batchMock{}
	result, err := New(mock, defaultOpts()).Run(context.Background(), nil, []chunk.FileContent{{Path: "a.go", Content: "x"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if mock.calls.Load() != 0 {
		t.Fatal("no provider call expected for an empty string set")
	}
	if len(result.Extracted()) != 0 {
		t.Fatal("no contexts expected")
	}
}

func TestBatchNoFilesShortCircuits(t *testing.T) {
	mock := &batchMock{}
	containers := []Container{{Name: "f", Strings: []*crowdin.String{{ID: 1, Text: "Save"}}}}
	_, err := New(mock, defaultOpts()).Run(context.Background(), containers, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if mock.calls.Load() != 0 {
		t.Fatal("no provider call expected without local files")
	}
}

func TestBatchChunkFailureDoesNotAbortRun(t *testing.T) {
	// Budget sized so every string lands in its own chunk: three
	// chunks, and the middle call fails.
	strs := []*crowdin.String{
		{ID: 1, Text: "alpha"},
		{ID: 2, Text: "beta"},
		{ID: 3, Text: "gamma"},
	}
	containers := []Container{{Name: "f", Strings: strs}}
	files := []chunk.FileContent{{Path: "a.go", Content: "x"}}

	mock := &batchMock{responses: []batchReply{
		{contexts: map[int64]string{1: "ctx-1"}},
		{err: errors.New("boom")},
		{contexts: map[int64]string{3: "ctx-3"}},
	}}

	opts := defaultOpts()
	opts.Template = "S:{{strings}} F:{{files}}"
	opts.Budget = chunk.Budget{ContextWindow: 65, MaxOutput: 0, StringsShare: 0.5}

	result, err := New(mock, opts).Run(context.Background(), containers, files)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := mock.calls.Load(); got != 3 {
		t.Fatalf("provider calls = %d, want 3", got)
	}
	if result.Failed != 1 {
		t.Fatalf("Failed = %d, want 1", result.Failed)
	}
	if got := result.Records[0].Extracted; len(got) != 1 || got[0] != "ctx-1" {
		t.Fatalf("string 1 extracted = %v", got)
	}
	if len(result.Records[1].Extracted) != 0 {
		t.Fatalf("failed chunk's string should have no context, got %v", result.Records[1].Extracted)
	}
	if got := result.Records[2].Extracted; len(got) != 1 || got[0] != "ctx-3" {
		t.Fatalf("string 3 extracted = %v", got)
	}
}

// malformedMock replies with a set_context call whose arguments do not
// parse.
type malformedMock struct{}

func (malformedMock) Chat(_ context.Context, _ provider.ChatRequest) (*provider.ChatResponse, error) {
	return &provider.ChatResponse{
		ToolCalls: []provider.ToolCall{{ID: "c", Name: provider.ToolSetContext, Arguments: json.RawMessage(`{"contexts":"nope"}`)}},
	}, nil
}

func TestBatchErrorNamesProvider(t *testing.T) {
	containers := []Container{{Name: "f", Strings: []*crowdin.String{{ID: 1, Text: "Save"}}}}
	files := []chunk.FileContent{{Path: "a.go", Content: "Save"}}

	var logged []string
	opts := defaultOpts()
	opts.Provider = "openai"
	opts.OnError = func(format string, args ...any) {
		logged = append(logged, fmt.Sprintf(format, args...))
	}

	result, err := New(malformedMock{}, opts).Run(context.Background(), containers, files)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("Failed = %d, want 1", result.Failed)
	}
	if len(logged) != 1 || !strings.Contains(logged[0], "openai: malformed") {
		t.Fatalf("logged = %q, want the provider named in the error", logged)
	}
}

// agentMock answers every agent exchange with a terminal set_context
// call derived deterministically from the string id in the prompt.
type agentMock struct{}

var idPattern = regexp.MustCompile(`"id":(\d+)`)

func (agentMock) Chat(_ context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	user := req.Messages[len(req.Messages)-1].Content
	match := idPattern.FindStringSubmatch(user)
	if match == nil {
		return &provider.ChatResponse{}, nil
	}
	args, _ := json.Marshal(map[string]string{"context": "ctx-" + match[1]})
	return &provider.ChatResponse{
		ToolCalls:  []provider.ToolCall{{ID: "c", Name: provider.ToolSetContext, Arguments: args}},
		TokensUsed: 7,
	}, nil
}

func agentContainers(n int) []Container {
	var strs []*crowdin.String
	for i := 1; i <= n; i++ {
		strs = append(strs, &crowdin.String{ID: int64(i), Text: fmt.Sprintf("text-%d", i)})
	}
	return []Container{{Name: "main", Strings: strs}}
}

func TestAgentDeterministicAcrossPoolSizes(t *testing.T) {
	run := func(workers int) *Result {
		opts := defaultOpts()
		opts.Strategy = StrategyAgent
		opts.Concurrency = workers
		result, err := New(agentMock{}, opts).Run(context.Background(), agentContainers(23), nil)
		if err != nil {
			t.Fatalf("Run(workers=%d): %v", workers, err)
		}
		return result
	}

	single := run(1)
	pooled := run(8)

	if len(single.Records) != len(pooled.Records) {
		t.Fatalf("record counts differ: %d vs %d", len(single.Records), len(pooled.Records))
	}
	for i := range single.Records {
		a, b := single.Records[i], pooled.Records[i]
		if a.Str.ID != b.Str.ID {
			t.Fatalf("record order differs at %d: %d vs %d", i, a.Str.ID, b.Str.ID)
		}
		if len(a.Extracted) != 1 || len(b.Extracted) != 1 || a.Extracted[0] != b.Extracted[0] {
			t.Fatalf("string %d extracted differs: %v vs %v", a.Str.ID, a.Extracted, b.Extracted)
		}
		if want := fmt.Sprintf("ctx-%d", a.Str.ID); a.Extracted[0] != want {
			t.Fatalf("string %d context = %q, want %q", a.Str.ID, a.Extracted[0], want)
		}
	}
	if single.TotalTokens != pooled.TotalTokens {
		t.Fatalf("token totals differ: %d vs %d", single.TotalTokens, pooled.TotalTokens)
	}
}

func TestAgentProgressReportedPerString(t *testing.T) {
	var increments atomic.Int64
	opts := defaultOpts()
	opts.Strategy = StrategyAgent
	opts.Concurrency = 4
	opts.Progress = &countingProgress{increments: &increments}

	if _, err := New(agentMock{}, opts).Run(context.Background(), agentContainers(9), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if increments.Load() != 9 {
		t.Fatalf("progress increments = %d, want one per string", increments.Load())
	}
}

type countingProgress struct {
	increments *atomic.Int64
}

func (countingProgress) Start(string) {}
func (countingProgress) Stop()        {}

func (p *countingProgress) Increment(n int, _ string) {
	p.increments.Add(int64(n))
}

func TestAgentClampsWorkerCount(t *testing.T) {
	opts := defaultOpts()
	opts.Strategy = StrategyAgent
	opts.Concurrency = -3
	result, err := New(agentMock{}, opts).Run(context.Background(), agentContainers(2), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Extracted()) != 2 {
		t.Fatalf("extracted = %d, want 2", len(result.Extracted()))
	}
}

func TestRecordAppendRejectsBlanks(t *testing.T) {
	r := &Record{Str: &crowdin.String{ID: 1}}
	r.append("")
	r.append("   \n")
	r.append("real fragment")
	if len(r.Extracted) != 1 || r.Extracted[0] != "real fragment" {
		t.Fatalf("Extracted = %v, want only the real fragment", r.Extracted)
	}
}

func TestUpdatesMergeWithSectionMarkers(t *testing.T) {
	r1 := &Record{Str: &crowdin.String{ID: 1, Context: "Existing note."}, Extracted: []string{"Found in header."}}
	r2 := &Record{Str: &crowdin.String{ID: 2}}
	res := &Result{Records: []*Record{r1, r2}}

	updates := res.Updates()
	if len(updates) != 1 {
		t.Fatalf("updates = %d, want 1 (only strings with fragments)", len(updates))
	}
	want := aicontext.Append("Existing note.", []string{"Found in header."})
	if updates[0].ID != 1 || updates[0].Context != want {
		t.Fatalf("update = %+v", updates[0])
	}
}

func TestCheckModeRecordsErrors(t *testing.T) {
	containers := []Container{{Name: "f", Strings: []*crowdin.String{{ID: 1, Text: "Save %s"}}}}
	files := []chunk.FileContent{{Path: "a.go", Content: "Save %s"}}

	mock := &checkMock{}
	opts := defaultOpts()
	opts.Mode = ModeCheck

	result, err := New(mock, opts).Run(context.Background(), containers, files)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := result.Records[0].Extracted; len(got) != 1 || got[0] != "placeholder mismatch" {
		t.Fatalf("extracted = %v", got)
	}
	if mock.sawValidationTool != true {
		t.Fatal("check mode must offer the report_errors tool")
	}
}

type checkMock struct {
	sawValidationTool bool
}

func (m *checkMock) Chat(_ context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	for _, tool := range req.Tools {
		if tool.Name == provider.ToolReportErrors {
			m.sawValidationTool = true
		}
	}
	return &provider.ChatResponse{
		ToolCalls: []provider.ToolCall{{
			ID:        "c",
			Name:      provider.ToolReportErrors,
			Arguments: json.RawMessage(`{"errors":[{"id":1,"error":"placeholder mismatch"}]}`),
		}},
	}, nil
}
