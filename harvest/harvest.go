// Package harvest orchestrates context extraction: screening, chunk
// planning, provider calls, and merging the normalized results back
// onto the source strings. Two strategies share the same provider
// adapter: a sequential chunked batch mode and a concurrent per-string
// agentic mode.
package harvest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/crowdin/context-harvester/aicontext"
	"github.com/crowdin/context-harvester/chunk"
	"github.com/crowdin/context-harvester/crowdin"
	"github.com/crowdin/context-harvester/prompt"
	"github.com/crowdin/context-harvester/provider"
)

// ---------------------------------------------------------------------------
// Modes and strategies
// ---------------------------------------------------------------------------

// Mode selects what the provider is asked to produce.
type Mode string

const (
	// ModeExtract harvests translation context.
	ModeExtract Mode = "extract"
	// ModeCheck reports issues with existing texts and contexts.
	ModeCheck Mode = "check"
)

// Strategy selects how strings are fed to the provider.
type Strategy string

const (
	// StrategyBatch sends chunked string/file sets in single-shot
	// requests, sequentially.
	StrategyBatch Strategy = "batch"
	// StrategyAgent runs a tool-using agent per string with a bounded
	// worker pool.
	StrategyAgent Strategy = "agent"
)

// DefaultConcurrency is the agent-mode worker pool size.
const DefaultConcurrency = 10

// ---------------------------------------------------------------------------
// Data model
// ---------------------------------------------------------------------------

// Record tracks one source string through a run. Extracted holds the
// context fragments (or issue reports in check mode) found so far;
// empty or whitespace-only fragments are never recorded.
type Record struct {
	Str       *crowdin.String
	Extracted []string
}

// append adds a fragment unless it is blank.
func (r *Record) append(fragment string) {
	if strings.TrimSpace(fragment) == "" {
		return
	}
	r.Extracted = append(r.Extracted, fragment)
}

// Container is one group of strings: a remote file for file-based
// projects, a branch for strings-based ones.
type Container struct {
	Name    string
	Strings []*crowdin.String
}

// Result is the outcome of one run. Records preserves string discovery
// order across containers.
type Result struct {
	Records     []*Record
	TotalTokens int
	// DroppedFiles lists file paths whose fragments stayed oversized
	// after the split ceiling and were never sent.
	DroppedFiles []string
	// Failed counts units (chunks or strings) whose provider call
	// failed and was skipped.
	Failed int
}

// Extracted returns only the records that gained at least one
// fragment.
func (res *Result) Extracted() []*Record {
	var out []*Record
	for _, r := range res.Records {
		if len(r.Extracted) > 0 {
			out = append(out, r)
		}
	}
	return out
}

// Updates renders the extracted records as batch patch operations,
// merging the joined fragments into each string's context with the
// delimited-section protocol.
func (res *Result) Updates() []crowdin.ContextUpdate {
	var updates []crowdin.ContextUpdate
	for _, r := range res.Extracted() {
		updates = append(updates, crowdin.ContextUpdate{
			ID:      r.Str.ID,
			Context: aicontext.Append(r.Str.Context, r.Extracted),
		})
	}
	return updates
}

// ---------------------------------------------------------------------------
// Progress port
// ---------------------------------------------------------------------------

// Progress receives live completion updates. Implementations render a
// spinner, a counter, or nothing.
type Progress interface {
	Start(label string)
	Increment(n int, meta string)
	Stop()
}

type noProgress struct{}

func (noProgress) Start(string)          {}
func (noProgress) Increment(int, string) {}
func (noProgress) Stop()                 {}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Options controls one harvest run.
type Options struct {
	// Mode selects extraction or validation. Default: extract.
	Mode Mode
	// Strategy selects batch or agent. Default: batch.
	Strategy Strategy
	// Provider names the AI backend, for error messages.
	Provider string
	// Screen pre-filters strings against file content in batch mode.
	Screen prompt.ScreenMode
	// Template is the user prompt template; empty selects the built-in
	// default for the mode.
	Template string
	// Budget is the token envelope of one batch request.
	Budget chunk.Budget
	// Count estimates token costs for the planner.
	Count chunk.Counter
	// Concurrency is the agent-mode pool size, clamped to >= 1.
	// Default: DefaultConcurrency.
	Concurrency int
	// Workspace provides the agent's filesystem tools.
	Workspace provider.FSTools
	// Progress receives live updates; nil disables reporting.
	Progress Progress
	// OnLog and OnError receive diagnostic messages.
	OnLog   func(format string, args ...any)
	OnError func(format string, args ...any)
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) logError(format string, args ...any) {
	if o.OnError != nil {
		o.OnError(format, args...)
	} else if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) mode() Mode {
	if o.Mode == "" {
		return ModeExtract
	}
	return o.Mode
}

func (o *Options) template() string {
	if o.Template != "" {
		return o.Template
	}
	if o.mode() == ModeCheck {
		return prompt.CheckTemplate
	}
	return prompt.DefaultTemplate
}

func (o *Options) tool() provider.Tool {
	if o.mode() == ModeCheck {
		return provider.ValidationTool()
	}
	return provider.ExtractionTool()
}

func (o *Options) concurrency() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return DefaultConcurrency
}

func (o *Options) progress() Progress {
	if o.Progress != nil {
		return o.Progress
	}
	return noProgress{}
}

// ---------------------------------------------------------------------------
// Harvester
// ---------------------------------------------------------------------------

// Harvester drives one run against one provider client.
type Harvester struct {
	client provider.Client
	opts   Options
}

// New returns a harvester for the given provider client.
func New(client provider.Client, opts Options) *Harvester {
	return &Harvester{client: client, opts: opts}
}

// Run dispatches to the configured strategy.
func (h *Harvester) Run(ctx context.Context, containers []Container, files []chunk.FileContent) (*Result, error) {
	if h.opts.Strategy == StrategyAgent {
		return h.runAgent(ctx, containers)
	}
	return h.runBatch(ctx, containers, files)
}

// index builds the run's records in discovery order plus an id lookup.
// Results referencing ids outside the map are dropped.
func index(containers []Container) ([]*Record, map[int64]*Record) {
	var records []*Record
	byID := make(map[int64]*Record)
	for _, c := range containers {
		for _, s := range c.Strings {
			if _, ok := byID[s.ID]; ok {
				continue
			}
			r := &Record{Str: s}
			records = append(records, r)
			byID[s.ID] = r
		}
	}
	return records, byID
}

// ---------------------------------------------------------------------------
// Batch strategy
// ---------------------------------------------------------------------------

func (h *Harvester) runBatch(ctx context.Context, containers []Container, files []chunk.FileContent) (*Result, error) {
	opts := &h.opts
	records, byID := index(containers)
	result := &Result{Records: records}

	if len(records) == 0 {
		opts.log("no strings to process")
		return result, nil
	}
	if len(files) == 0 {
		opts.log("no local files discovered, nothing to extract from")
		return result, nil
	}

	templateText := opts.template()
	promptTokens := opts.Count(prompt.Build(templateText, "", ""))
	stringsBudget, filesBudget := opts.Budget.Split(promptTokens)

	progress := opts.progress()
	progress.Start(fmt.Sprintf("extracting context for %d strings across %d files", len(records), len(files)))
	defer progress.Stop()

	for _, container := range containers {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		h.batchContainer(ctx, container, files, templateText, stringsBudget, filesBudget, byID, result, progress)
	}
	return result, nil
}

// batchContainer processes one container against every local file.
func (h *Harvester) batchContainer(ctx context.Context, container Container, files []chunk.FileContent, templateText string, stringsBudget, filesBudget int, byID map[int64]*Record, result *Result, progress Progress) {
	opts := &h.opts

	for _, file := range files {
		screened := prompt.Screen(container.Strings, file.Content, opts.Screen)
		if len(screened) == 0 {
			opts.log("%s: no candidate strings for %s after screening, skipping", container.Name, file.Path)
			continue
		}

		stringChunks, oversized := chunk.SplitStrings(screened, stringsBudget, opts.Count)
		for _, id := range oversized {
			opts.logError("string %d exceeds the chunk budget on its own; sending it in an oversized request", id)
		}

		fileChunks, dropped := chunk.SplitFiles([]chunk.FileContent{file}, filesBudget, opts.Count)
		for _, path := range dropped {
			opts.logError("%s is too large to process even after splitting, skipping", path)
			result.DroppedFiles = append(result.DroppedFiles, path)
		}

		// One request per (strings-chunk x files-chunk) combination.
		for _, sc := range stringChunks {
			for _, fc := range fileChunks {
				if ctx.Err() != nil {
					return
				}
				tokens, err := h.batchCall(ctx, templateText, sc, fc, byID)
				result.TotalTokens += tokens
				if err != nil {
					result.Failed++
					opts.logError("%s: provider call failed for a chunk of %s: %v", container.Name, file.Path, err)
					continue
				}
				progress.Increment(len(sc), fmt.Sprintf("%d tokens", result.TotalTokens))
			}
		}
	}
}

// batchCall issues one request and merges its results. Unknown string
// ids are silently dropped.
func (h *Harvester) batchCall(ctx context.Context, templateText string, sc []*crowdin.String, fc []chunk.FileContent, byID map[int64]*Record) (int, error) {
	opts := &h.opts
	user := prompt.Build(templateText, chunk.SerializeStrings(sc), chunk.SerializeFiles(fc))

	resp, err := h.client.Chat(ctx, provider.ChatRequest{
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: prompt.SystemPrompt},
			{Role: provider.RoleUser, Content: user},
		},
		Tools: []provider.Tool{opts.tool()},
	})
	if err != nil {
		return 0, err
	}

	results, err := provider.Normalize(opts.Provider, resp)
	if err != nil {
		return resp.TokensUsed, err
	}
	for _, res := range results {
		record, ok := byID[res.StringID]
		if !ok {
			continue
		}
		if opts.mode() == ModeCheck {
			record.append(res.Error)
		} else {
			record.append(res.Context)
		}
	}
	return resp.TokensUsed, nil
}

// ---------------------------------------------------------------------------
// Agent strategy
// ---------------------------------------------------------------------------

// runAgent flattens all strings into one queue and runs a fixed pool
// of workers over it. Each worker owns the record it claimed, so no
// locking is needed around fragment appends.
func (h *Harvester) runAgent(ctx context.Context, containers []Container) (*Result, error) {
	opts := &h.opts
	records, _ := index(containers)
	result := &Result{Records: records}

	if len(records) == 0 {
		opts.log("no strings to process")
		return result, nil
	}

	workers := opts.concurrency()
	if workers < 1 {
		workers = 1
	}
	if workers > len(records) {
		workers = len(records)
	}

	progress := opts.progress()
	progress.Start(fmt.Sprintf("extracting context for %d strings with %d workers", len(records), workers))
	defer progress.Stop()

	var (
		cursor     atomic.Int64
		done       atomic.Int64
		tokens     atomic.Int64
		failed     atomic.Int64
		wg         sync.WaitGroup
		totalCount = int64(len(records))
	)

	worker := func() {
		defer wg.Done()
		for {
			i := cursor.Add(1) - 1
			if i >= totalCount {
				return
			}
			if ctx.Err() != nil {
				return
			}
			record := records[i]

			serialized := chunk.SerializeStrings([]*crowdin.String{record.Str})
			agentPrompt := prompt.BuildAgent(opts.Template, serialized)

			res, err := provider.RunAgent(ctx, h.client, opts.Workspace, prompt.SystemPrompt, agentPrompt)
			tokens.Add(int64(res.TokensUsed))
			if err != nil {
				failed.Add(1)
				opts.logError("string %d: agent failed: %v", record.Str.ID, err)
			} else {
				record.append(res.Context)
			}

			completed := done.Add(1)
			progress.Increment(1, fmt.Sprintf("%d/%d strings, %d tokens", completed, totalCount, tokens.Load()))
		}
	}

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go worker()
	}
	wg.Wait()

	result.TotalTokens = int(tokens.Load())
	result.Failed = int(failed.Load())
	return result, ctx.Err()
}
