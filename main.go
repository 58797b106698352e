// context-harvester — extracts translation context for Crowdin strings
// from a project's source code using AI.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/crowdin/context-harvester/aicontext"
	"github.com/crowdin/context-harvester/chunk"
	"github.com/crowdin/context-harvester/config"
	"github.com/crowdin/context-harvester/crowdin"
	"github.com/crowdin/context-harvester/harvest"
	"github.com/crowdin/context-harvester/localfs"
	"github.com/crowdin/context-harvester/output"
	"github.com/crowdin/context-harvester/prompt"
	"github.com/crowdin/context-harvester/provider"
	"github.com/crowdin/context-harvester/settings"
	"github.com/crowdin/context-harvester/tokens"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

func fatal(format string, args ...any) {
	logError(format, args...)
	os.Exit(1)
}

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "context-harvester",
		Short: "Extract translation context for Crowdin strings from source code",
		Long: `context-harvester — AI context extraction for Crowdin projects.

Pulls source strings from a Crowdin project, scans the local codebase
for their usage, asks an AI model to describe that usage, and writes
the result back as translation context (or to a CSV for review).

Commands:
  harvest     Extract context for project strings
  check       Review existing texts and contexts, report issues
  upload      Upload contexts from a reviewed CSV
  reset       Remove previously harvested context from strings
  auth        Manage Crowdin and AI provider credentials

AI Providers:
  crowdin        Crowdin AI (uses providers configured in your account)
  openai         OpenAI or any OpenAI-compatible endpoint
  anthropic      Anthropic
  google-vertex  Google Cloud Vertex AI (service account)
  azure          Azure OpenAI deployment`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newHarvestCmd(),
		newCheckCmd(),
		newUploadCmd(),
		newResetCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	// .env in the working directory seeds the environment, never
	// overriding variables that are already set.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("context-harvester version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// Shared flags
// ---------------------------------------------------------------------------

// harvestArgs collects everything the harvest and check commands share.
type harvestArgs struct {
	// Crowdin account / project
	token   string
	org     string
	project int64

	// String selection
	croql        string
	crowdinFiles string

	// Local codebase
	root             string
	localFiles       []string
	localIgnoreFiles []string

	// Provider selection
	ai                string
	model             string
	apiKey            string
	baseURL           string
	vertexProject     string
	vertexRegion      string
	vertexCredentials string
	azureResource     string
	azureDeployment   string
	crowdinProviderID int64

	// Extraction behavior
	strategy    string
	screen      string
	promptFile  string
	contextSize int
	maxOutput   int
	concurrency int

	// Output
	outputMode string
	csvPath    string
	appendCSV  bool

	// Network
	timeout    time.Duration
	maxRetries int
	proxy      string
}

func addHarvestFlags(cmd *cobra.Command, a *harvestArgs) {
	f := cmd.Flags()

	// Crowdin
	f.StringVar(&a.token, "token", "", "Crowdin personal access token (or CROWDIN_TOKEN)")
	f.StringVar(&a.org, "org", "", "Crowdin Enterprise organization (or CROWDIN_ORG)")
	f.Int64Var(&a.project, "project", 0, "Crowdin project id (required)")
	f.StringVar(&a.croql, "croql", "", "CroQL query to select strings")
	f.StringVar(&a.crowdinFiles, "crowdinFiles", "", "Glob matched against Crowdin file paths")

	// Local codebase
	f.StringVar(&a.root, "root", ".", "Local project root directory")
	f.StringSliceVar(&a.localFiles, "localFiles", []string{"**/*"}, "Include globs for local files")
	f.StringSliceVar(&a.localIgnoreFiles, "localIgnoreFiles", []string{"**/node_modules/**", "**/.git/**"}, "Exclude globs for local files")

	// Provider
	f.StringVar(&a.ai, "ai", "", "AI provider (required): crowdin, openai, anthropic, google-vertex, azure")
	f.StringVar(&a.model, "model", "", "Model name")
	f.StringVar(&a.apiKey, "key", "", "Provider API key (or provider env var)")
	f.StringVar(&a.baseURL, "baseUrl", "", "Custom API base URL (openai)")
	f.StringVar(&a.vertexProject, "vertexProject", "", "Google Cloud project id (google-vertex)")
	f.StringVar(&a.vertexRegion, "vertexRegion", "", "Google Cloud region (google-vertex)")
	f.StringVar(&a.vertexCredentials, "vertexCredentials", "", "Service account JSON file (google-vertex)")
	f.StringVar(&a.azureResource, "azureResource", "", "Azure OpenAI resource name (azure)")
	f.StringVar(&a.azureDeployment, "azureDeployment", "", "Azure OpenAI deployment name (azure)")
	f.Int64Var(&a.crowdinProviderID, "crowdinAiId", 0, "Crowdin AI provider id (crowdin; default: first enabled)")

	// Behavior
	f.StringVar(&a.strategy, "strategy", "batch", "Extraction strategy: batch or agent")
	f.StringVar(&a.screen, "screen", "none", "Pre-filter strings against file content: none, keys, texts")
	f.StringVar(&a.promptFile, "promptFile", "", "Custom prompt template file ('-' = stdin)")
	f.IntVar(&a.contextSize, "contextWindowSize", 128000, "Model context window in tokens")
	f.IntVar(&a.maxOutput, "maxOutputTokens", 16384, "Response headroom in tokens")
	f.IntVar(&a.concurrency, "concurrency", harvest.DefaultConcurrency, "Worker count for the agent strategy")

	// Output
	f.StringVar(&a.outputMode, "output", "terminal", "Where results go: terminal, csv, crowdin")
	f.StringVar(&a.csvPath, "csvPath", "context.csv", "CSV file path for csv output")
	f.BoolVar(&a.appendCSV, "append", false, "Merge results of a previous CSV run")

	// Network
	f.DurationVar(&a.timeout, "timeout", 0, "Request timeout (0 = default)")
	f.IntVar(&a.maxRetries, "maxRetries", 2, "Retries on rate limit and transient errors")
	f.StringVar(&a.proxy, "proxy", "", "HTTP/HTTPS proxy URL")

	_ = cmd.RegisterFlagCompletionFunc("ai", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{
			"crowdin\tCrowdin AI (account-configured providers)",
			"openai\tOpenAI / OpenAI-compatible endpoint",
			"anthropic\tAnthropic",
			"google-vertex\tGoogle Cloud Vertex AI",
			"azure\tAzure OpenAI deployment",
		}, cobra.ShellCompDirectiveNoFileComp
	})
}

// applyConfigFile overlays .context-harvester.yml values onto flags the
// user did not set explicitly.
func applyConfigFile(cmd *cobra.Command, a *harvestArgs) error {
	cf, err := config.Load(a.root)
	if err != nil {
		return err
	}
	if cf == nil {
		return nil
	}

	changed := cmd.Flags().Changed
	if !changed("org") && cf.Org != "" {
		a.org = cf.Org
	}
	if !changed("project") && cf.Project != 0 {
		a.project = cf.Project
	}
	if !changed("ai") && cf.AI != "" {
		a.ai = cf.AI
	}
	if !changed("model") && cf.Model != "" {
		a.model = cf.Model
	}
	if !changed("screen") && cf.Screen != "" {
		a.screen = cf.Screen
	}
	if !changed("localFiles") && len(cf.LocalFiles) > 0 {
		a.localFiles = cf.LocalFiles
	}
	if !changed("localIgnoreFiles") && len(cf.LocalIgnoreFiles) > 0 {
		a.localIgnoreFiles = cf.LocalIgnoreFiles
	}
	if !changed("crowdinFiles") && cf.CrowdinFiles != "" {
		a.crowdinFiles = cf.CrowdinFiles
	}
	if !changed("croql") && cf.CroQL != "" {
		a.croql = cf.CroQL
	}
	if !changed("promptFile") && cf.PromptFile != "" {
		a.promptFile = cf.PromptFile
	}
	if !changed("output") && cf.Output != "" {
		a.outputMode = cf.Output
	}
	if !changed("csvPath") && cf.CSVPath != "" {
		a.csvPath = cf.CSVPath
	}
	if !changed("contextWindowSize") && cf.ContextWindowSize != 0 {
		a.contextSize = cf.ContextWindowSize
	}
	if !changed("maxOutputTokens") && cf.MaxOutputTokens != 0 {
		a.maxOutput = cf.MaxOutputTokens
	}
	if !changed("concurrency") && cf.Concurrency != 0 {
		a.concurrency = cf.Concurrency
	}
	return nil
}

// ---------------------------------------------------------------------------
// harvest / check
// ---------------------------------------------------------------------------

func newHarvestCmd() *cobra.Command {
	var a harvestArgs

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Extract context for project strings",
		Long: `Extract translation context for Crowdin strings from local source code.

Pulls strings from the project, scans the codebase, and asks the AI
model where and how each string is used. Results go to a terminal
table, a CSV file for review, or straight back to Crowdin.

Examples:
  # Review results in the terminal
  context-harvester harvest --project 123 --ai openai --model gpt-4o

  # Only send strings whose key appears in the inspected file
  context-harvester harvest --project 123 --ai openai --model gpt-4o --screen keys

  # Let an agent explore the codebase per string, write straight to Crowdin
  context-harvester harvest --project 123 --ai anthropic --model claude-sonnet-4-5 \
      --strategy agent --output crowdin

  # Write a CSV for review, then upload it later
  context-harvester harvest --project 123 --ai openai --model gpt-4o \
      --output csv --csvPath review.csv`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := applyConfigFile(cmd, &a); err != nil {
				fatal("%v", err)
			}
			runHarvest(a, harvest.ModeExtract)
		},
	}

	addHarvestFlags(cmd, &a)
	return cmd
}

func newCheckCmd() *cobra.Command {
	var a harvestArgs

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Review texts and contexts, report issues",
		Long: `Review project strings and their existing context against the code.

Runs the same pipeline as harvest, but the model reports issues
(wrong or outdated context, mismatched placeholders, unused texts)
instead of extracting new context. Results never go back to Crowdin;
use terminal or csv output.`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := applyConfigFile(cmd, &a); err != nil {
				fatal("%v", err)
			}
			if a.outputMode == "crowdin" {
				fatal("check results cannot be written to Crowdin; use --output terminal or csv")
			}
			runHarvest(a, harvest.ModeCheck)
		},
	}

	addHarvestFlags(cmd, &a)
	return cmd
}

func runHarvest(a harvestArgs, mode harvest.Mode) {
	if a.ai == "" {
		fatal("--ai is required")
	}
	if a.ai != provider.ProviderCrowdin && a.model == "" {
		fatal("--model is required for provider %s", a.ai)
	}

	screen, err := parseScreen(a.screen)
	if err != nil {
		fatal("%v", err)
	}
	strategy, err := parseStrategy(a.strategy)
	if err != nil {
		fatal("%v", err)
	}

	template, err := prompt.Load(a.promptFile)
	if err != nil {
		fatal("loading prompt template: %v", err)
	}
	if a.promptFile != "" && strategy == harvest.StrategyBatch {
		if err := prompt.Validate(template); err != nil {
			fatal("prompt template: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	cw := newCrowdinClient(a.token, a.org)

	if a.project == 0 {
		listAvailableProjects(ctx, cw)
		fatal("--project is required")
	}

	project, err := cw.GetProject(ctx, a.project)
	if err != nil {
		fatal("loading project %d: %v", a.project, err)
	}
	logInfo("Project: %s (id %d)", project.Name, project.ID)
	if langs := targetLanguageNames(ctx, cw, project); langs != "" {
		logInfo("Target languages: %s", langs)
	}

	containers, err := listContainers(ctx, cw, project, a)
	if err != nil {
		fatal("loading strings: %v", err)
	}
	total := 0
	for _, c := range containers {
		total += len(c.Strings)
	}
	logInfo("Loaded %d strings from %d %s", total, len(containers), containerNoun(project))

	var files []chunk.FileContent
	if strategy == harvest.StrategyBatch {
		paths, err := localfs.Discover(a.root, a.localFiles, a.localIgnoreFiles)
		if err != nil {
			fatal("scanning local files: %v", err)
		}
		files = localfs.ReadFiles(a.root, paths, logWarning)
		logInfo("Scanning %d local files", len(files))
	}

	client, err := newProviderClient(ctx, a, cw)
	if err != nil {
		fatal("%v", err)
	}

	estimator := tokens.NewEstimator(a.model)

	opts := harvest.Options{
		Mode:     mode,
		Strategy: strategy,
		Provider: a.ai,
		Screen:   screen,
		Template: template,
		Budget: chunk.Budget{
			ContextWindow: a.contextSize,
			MaxOutput:     a.maxOutput,
		},
		Count:       chunk.Counter(estimator.Counter()),
		Concurrency: a.concurrency,
		Workspace:   &localfs.Workspace{Root: a.root},
		Progress:    &logProgress{},
		OnLog:       logInfo,
		OnError:     logWarning,
	}

	result, err := harvest.New(client, opts).Run(ctx, containers, files)
	if err != nil {
		if ctx.Err() != nil {
			logWarning("Interrupted")
			writeResults(cw, a, mode, result)
			os.Exit(0)
		}
		fatal("extraction failed: %v", err)
	}

	if result.Failed > 0 {
		logWarning("%d units failed and were skipped", result.Failed)
	}
	logInfo("Used roughly %d tokens", result.TotalTokens)

	writeResults(cw, a, mode, result)
	logSuccess("Done: %d of %d strings got results", len(result.Extracted()), len(result.Records))
}

func writeResults(cw *crowdin.Client, a harvestArgs, mode harvest.Mode, result *harvest.Result) {
	if a.appendCSV {
		if previous, err := output.LoadCSV(a.csvPath); err == nil {
			output.MergeAppend(result.Records, previous)
			logInfo("Merged results from %s", a.csvPath)
		} else {
			logWarning("--append: %v", err)
		}
	}

	rows := output.Rows(result.Records)
	switch a.outputMode {
	case "terminal":
		if err := output.WriteTable(os.Stdout, rows, mode); err != nil {
			fatal("%v", err)
		}
	case "csv":
		if err := output.SaveCSV(a.csvPath, rows, mode); err != nil {
			fatal("%v", err)
		}
		logSuccess("Results written to %s", a.csvPath)
	case "crowdin":
		updates := result.Updates()
		if len(updates) == 0 {
			logInfo("Nothing to update")
			return
		}
		if err := cw.BatchUpdateContexts(context.Background(), a.project, updates); err != nil {
			fatal("updating contexts: %v", err)
		}
		logSuccess("Updated context of %d strings", len(updates))
	default:
		fatal("unknown output %q (valid: terminal, csv, crowdin)", a.outputMode)
	}
}

// ---------------------------------------------------------------------------
// upload
// ---------------------------------------------------------------------------

func newUploadCmd() *cobra.Command {
	var (
		token   string
		org     string
		project int64
		csvPath string
		all     bool
	)

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload contexts from a reviewed CSV",
		Long: `Upload string contexts from a CSV produced by 'harvest --output csv'.

By default the AI column is merged into each string's existing context
inside the delimited AI section. With --all, the column replaces the
context verbatim.`,
		Run: func(cmd *cobra.Command, args []string) {
			if project == 0 {
				fatal("--project is required")
			}
			rows, err := output.LoadCSV(csvPath)
			if err != nil {
				fatal("%v", err)
			}
			updates := output.Updates(rows, all)
			if len(updates) == 0 {
				logInfo("Nothing to upload")
				return
			}

			ctx, cancel := signalContext()
			defer cancel()

			cw := newCrowdinClient(token, org)
			if err := cw.BatchUpdateContexts(ctx, project, updates); err != nil {
				fatal("updating contexts: %v", err)
			}
			logSuccess("Updated context of %d strings", len(updates))
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Crowdin personal access token (or CROWDIN_TOKEN)")
	cmd.Flags().StringVar(&org, "org", "", "Crowdin Enterprise organization (or CROWDIN_ORG)")
	cmd.Flags().Int64Var(&project, "project", 0, "Crowdin project id (required)")
	cmd.Flags().StringVar(&csvPath, "csvPath", "context.csv", "CSV file to upload")
	cmd.Flags().BoolVar(&all, "all", false, "Replace contexts verbatim instead of merging the AI section")

	return cmd
}

// ---------------------------------------------------------------------------
// reset
// ---------------------------------------------------------------------------

func newResetCmd() *cobra.Command {
	var (
		token   string
		org     string
		project int64
		croql   string
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove previously harvested context from strings",
		Long: `Remove the AI context section from every string that has one.

Only the delimited AI section is removed; context written by humans
is left untouched.`,
		Run: func(cmd *cobra.Command, args []string) {
			if project == 0 {
				fatal("--project is required")
			}

			ctx, cancel := signalContext()
			defer cancel()

			cw := newCrowdinClient(token, org)

			query := croql
			if query == "" {
				query = fmt.Sprintf("context contains %q", aicontext.SectionStart)
			}
			strs, err := cw.ListStrings(ctx, project, crowdin.StringsFilter{CroQL: query})
			if err != nil {
				fatal("listing strings: %v", err)
			}
			if len(strs) == 0 {
				logInfo("No strings with harvested context found")
				return
			}

			var updates []crowdin.ContextUpdate
			for _, s := range strs {
				if !aicontext.Has(s.Context) {
					continue
				}
				updates = append(updates, crowdin.ContextUpdate{
					ID:      s.ID,
					Context: aicontext.Strip(s.Context),
				})
			}
			if len(updates) == 0 {
				logInfo("No strings with harvested context found")
				return
			}

			if err := cw.BatchUpdateContexts(ctx, project, updates); err != nil {
				fatal("updating contexts: %v", err)
			}
			logSuccess("Removed harvested context from %d strings", len(updates))
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Crowdin personal access token (or CROWDIN_TOKEN)")
	cmd.Flags().StringVar(&org, "org", "", "Crowdin Enterprise organization (or CROWDIN_ORG)")
	cmd.Flags().Int64Var(&project, "project", 0, "Crowdin project id (required)")
	cmd.Flags().StringVar(&croql, "croql", "", "Custom CroQL query to select strings")

	return cmd
}

// ---------------------------------------------------------------------------
// auth
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage Crowdin and AI provider credentials",
		Long: `Store, inspect, and remove credentials.

Crowdin:
  crowdin        Personal access token + optional enterprise org

AI providers:
  openai         API key, optional custom base URL
  anthropic      API key
  google-vertex  Project id, region, service account JSON file
  azure          Resource name, deployment name, API key

Credentials are stored with 0600 permissions under:
  ` + settings.FilePath() + `

Examples:
  context-harvester auth login --provider crowdin
  context-harvester auth login --provider openai
  context-harvester auth logout --provider openai
  context-harvester auth list`,
	}

	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthLogoutCmd(),
		newAuthListCmd(),
	)

	return cmd
}

// allProviders is the ordered list for the interactive menu.
var allProviders = []struct {
	id   string
	desc string
}{
	{"crowdin", "Crowdin account (personal access token)"},
	{"openai", "OpenAI or compatible endpoint (API key)"},
	{"anthropic", "Anthropic (API key)"},
	{"google-vertex", "Google Cloud Vertex AI (service account)"},
	{"azure", "Azure OpenAI (resource + deployment + key)"},
}

func newAuthLoginCmd() *cobra.Command {
	var providerID string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store credentials for Crowdin or an AI provider",
		Run: func(cmd *cobra.Command, args []string) {
			if providerID == "" {
				fmt.Fprintln(os.Stderr, "")
				fmt.Fprintf(os.Stderr, "%sSelect what to configure:%s\n\n", colorBlue, colorReset)
				for i, p := range allProviders {
					fmt.Fprintf(os.Stderr, "  %d. %s%-14s%s %s\n", i+1, colorYellow, p.id, colorReset, p.desc)
				}
				fmt.Fprintln(os.Stderr)
				fmt.Fprintf(os.Stderr, "Enter choice (number or name): ")

				choice := readLine()
				for i, p := range allProviders {
					if choice == fmt.Sprintf("%d", i+1) || choice == p.id {
						providerID = p.id
						break
					}
				}
				if providerID == "" {
					fatal("Invalid choice. Use: context-harvester auth login --provider PROVIDER")
				}
			}

			switch providerID {
			case "crowdin":
				authLoginCrowdin()
			case provider.ProviderOpenAI:
				authLoginOpenAI()
			case provider.ProviderAnthropic:
				authLoginKeyOnly(provider.ProviderAnthropic)
			case provider.ProviderGoogleVertex:
				authLoginVertex()
			case provider.ProviderAzure:
				authLoginAzure()
			default:
				fatal("Unknown provider '%s'. Run 'context-harvester auth login' for options.", providerID)
			}
		},
	}

	cmd.Flags().StringVar(&providerID, "provider", "", "What to configure")
	_ = cmd.RegisterFlagCompletionFunc("provider", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		completions := make([]string, 0, len(allProviders))
		for _, p := range allProviders {
			completions = append(completions, fmt.Sprintf("%s\t%s", p.id, p.desc))
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func readLine() string {
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		fatal("No input received")
	}
	return strings.TrimSpace(scanner.Text())
}

func promptValue(label string, required bool) string {
	for {
		fmt.Fprintf(os.Stderr, "  %s: ", label)
		v := readLine()
		if v != "" || !required {
			return v
		}
		logWarning("Value is required")
	}
}

func authLoginCrowdin() {
	fmt.Fprintf(os.Stderr, "\n%sCrowdin Account%s\n\n", colorBlue, colorReset)
	token := promptValue("Personal access token", true)
	org := promptValue("Enterprise organization (empty for crowdin.com)", false)
	if err := settings.SetCrowdin(token, org); err != nil {
		fatal("Storing credentials: %v", err)
	}
	logSuccess("Crowdin credentials stored")
}

func authLoginKeyOnly(providerID string) {
	fmt.Fprintf(os.Stderr, "\n%s%s%s\n\n", colorBlue, providerID, colorReset)
	key := promptValue("API key", true)
	if err := settings.SetAPIKey(providerID, key); err != nil {
		fatal("Storing credentials: %v", err)
	}
	logSuccess("%s credentials stored", providerID)
}

func authLoginOpenAI() {
	fmt.Fprintf(os.Stderr, "\n%sOpenAI%s\n\n", colorBlue, colorReset)
	key := promptValue("API key", true)
	baseURL := promptValue("Base URL (empty for api.openai.com)", false)
	if err := settings.Set(provider.ProviderOpenAI, &settings.Info{
		Type:    "api",
		Key:     key,
		BaseURL: baseURL,
	}); err != nil {
		fatal("Storing credentials: %v", err)
	}
	logSuccess("openai credentials stored")
}

func authLoginVertex() {
	fmt.Fprintf(os.Stderr, "\n%sGoogle Cloud Vertex AI%s\n\n", colorBlue, colorReset)
	project := promptValue("Project id", true)
	region := promptValue("Region (e.g. us-central1)", true)
	credsFile := promptValue("Service account JSON file path", true)
	if _, err := os.Stat(credsFile); err != nil {
		logWarning("Cannot read %s: %v", credsFile, err)
	}
	if err := settings.Set(provider.ProviderGoogleVertex, &settings.Info{
		Type:            "api",
		Project:         project,
		Region:          region,
		CredentialsFile: credsFile,
	}); err != nil {
		fatal("Storing credentials: %v", err)
	}
	logSuccess("google-vertex credentials stored")
}

func authLoginAzure() {
	fmt.Fprintf(os.Stderr, "\n%sAzure OpenAI%s\n\n", colorBlue, colorReset)
	resource := promptValue("Resource name", true)
	deployment := promptValue("Deployment name", true)
	key := promptValue("API key", true)
	if err := settings.Set(provider.ProviderAzure, &settings.Info{
		Type:       "api",
		Key:        key,
		Resource:   resource,
		Deployment: deployment,
	}); err != nil {
		fatal("Storing credentials: %v", err)
	}
	logSuccess("azure credentials stored")
}

func newAuthLogoutCmd() *cobra.Command {
	var providerID string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		Run: func(cmd *cobra.Command, args []string) {
			if providerID == "" {
				if err := settings.RemoveAll(); err != nil {
					fatal("Removing credentials: %v", err)
				}
				logSuccess("All credentials removed")
				return
			}
			if err := settings.Remove(providerID); err != nil {
				fatal("Removing credentials: %v", err)
			}
			logSuccess("%s credentials removed", providerID)
		},
	}

	cmd.Flags().StringVar(&providerID, "provider", "", "Provider to logout (default: all)")
	return cmd
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show stored credentials and status",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(os.Stderr, "\n%sStored Credentials%s (%s)\n", colorBlue, colorReset, settings.FilePath())
			fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

			store := settings.Load()
			for _, p := range allProviders {
				entry := store[p.id]
				if entry == nil {
					fmt.Fprintf(os.Stderr, "  %-14s %snot configured%s\n", p.id, colorRed, colorReset)
					continue
				}
				var status string
				switch {
				case entry.IsCrowdin():
					status = fmt.Sprintf("%sconfigured%s (token: %s", colorGreen, colorReset, settings.MaskKey(entry.Token))
					if entry.Org != "" {
						status += ", org: " + entry.Org
					}
					status += ")"
				case entry.CredentialsFile != "":
					status = fmt.Sprintf("%sconfigured%s (%s, %s)", colorGreen, colorReset, entry.Project, entry.Region)
				default:
					status = fmt.Sprintf("%sconfigured%s (key: %s)", colorGreen, colorReset, settings.MaskKey(entry.Key))
				}
				fmt.Fprintf(os.Stderr, "  %-14s %s\n", p.id, status)
			}

			fmt.Fprintf(os.Stderr, "\n  %sEnvironment%s\n", colorYellow, colorReset)
			for _, env := range []string{"CROWDIN_TOKEN", "CROWDIN_ORG", "OPENAI_KEY", "ANTHROPIC_API_KEY", "AZURE_API_KEY"} {
				if v := os.Getenv(env); v != "" {
					fmt.Fprintf(os.Stderr, "  %s: %s%s%s\n", env, colorGreen, settings.MaskKey(v), colorReset)
				}
			}
			fmt.Fprintln(os.Stderr)
		},
	}
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

// signalContext returns a context cancelled on the first interrupt.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		logWarning("Interrupted, finishing up...")
		cancel()
	}()

	return ctx, cancel
}

// newCrowdinClient resolves the token and org from flag, environment,
// and the credential store, in that order.
func newCrowdinClient(token, org string) *crowdin.Client {
	stored := settings.GetCrowdin()

	if token == "" {
		token = os.Getenv("CROWDIN_TOKEN")
	}
	if token == "" && stored != nil {
		token = stored.Token
	}
	if token == "" {
		fatal("Crowdin token missing: use --token, CROWDIN_TOKEN, or 'context-harvester auth login --provider crowdin'")
	}

	if org == "" {
		org = os.Getenv("CROWDIN_ORG")
	}
	if org == "" && stored != nil {
		org = stored.Org
	}

	return crowdin.New(token, org)
}

// newProviderClient builds the provider config from flags, environment,
// and the credential store.
func newProviderClient(ctx context.Context, a harvestArgs, cw *crowdin.Client) (provider.Client, error) {
	stored := settings.Get(a.ai)
	pick := func(flag, env string, storedVal string) string {
		if flag != "" {
			return flag
		}
		if env != "" {
			if v := os.Getenv(env); v != "" {
				return v
			}
		}
		return storedVal
	}
	storedField := func(get func(*settings.Info) string) string {
		if stored == nil {
			return ""
		}
		return get(stored)
	}

	cfg := provider.Config{
		ID:         a.ai,
		Model:      a.model,
		APIKey:     settings.ResolveAPIKey(a.ai, a.apiKey),
		BaseURL:    pick(a.baseURL, "OPENAI_BASE_URL", storedField(func(i *settings.Info) string { return i.BaseURL })),
		Region:     pick(a.vertexRegion, "GOOGLE_VERTEX_REGION", storedField(func(i *settings.Info) string { return i.Region })),
		Project:    pick(a.vertexProject, "GOOGLE_VERTEX_PROJECT", storedField(func(i *settings.Info) string { return i.Project })),
		Resource:   pick(a.azureResource, "AZURE_RESOURCE", storedField(func(i *settings.Info) string { return i.Resource })),
		Deployment: pick(a.azureDeployment, "AZURE_DEPLOYMENT", storedField(func(i *settings.Info) string { return i.Deployment })),
		CredentialsFile: pick(a.vertexCredentials, "GOOGLE_APPLICATION_CREDENTIALS",
			storedField(func(i *settings.Info) string { return i.CredentialsFile })),
		CrowdinProviderID: a.crowdinProviderID,
		Proxy:             a.proxy,
		Timeout:           a.timeout,
		MaxRetries:        a.maxRetries,
	}

	if cfg.ID == provider.ProviderCrowdin {
		userID, err := crowdinUserID(ctx, cw)
		if err != nil {
			return nil, err
		}
		if cfg.CrowdinProviderID == 0 {
			id, err := firstEnabledAIProvider(ctx, cw, userID)
			if err != nil {
				return nil, err
			}
			cfg.CrowdinProviderID = id
		}
		if cfg.Model == "" {
			model, err := firstAIModel(ctx, cw, userID, cfg.CrowdinProviderID)
			if err != nil {
				return nil, err
			}
			cfg.Model = model
		}
	}

	return provider.NewClient(cfg, cw)
}

// crowdinUserID resolves the id for user-scoped AI routes; enterprise
// accounts use organization routes and need none.
func crowdinUserID(ctx context.Context, cw *crowdin.Client) (int64, error) {
	if cw.IsEnterprise() {
		return 0, nil
	}
	id, err := cw.AuthenticatedUser(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolving crowdin user: %w", err)
	}
	return id, nil
}

// firstAIModel picks the default model of a Crowdin AI provider.
func firstAIModel(ctx context.Context, cw *crowdin.Client, userID, providerID int64) (string, error) {
	models, err := cw.ListAIModels(ctx, userID, providerID)
	if err != nil {
		return "", fmt.Errorf("listing crowdin AI models: %w", err)
	}
	if len(models) == 0 {
		return "", fmt.Errorf("Crowdin AI provider %d offers no models; pass --model", providerID)
	}
	logInfo("Using model %q", models[0].ID)
	return models[0].ID, nil
}

// listAvailableProjects prints the projects the token can see, as a
// hint next to the missing --project error.
func listAvailableProjects(ctx context.Context, cw *crowdin.Client) {
	projects, err := cw.ListProjects(ctx)
	if err != nil || len(projects) == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "\nAvailable projects:\n")
	for _, p := range projects {
		fmt.Fprintf(os.Stderr, "  %8d  %s\n", p.ID, p.Name)
	}
	fmt.Fprintln(os.Stderr)
}

// targetLanguageNames resolves the project's target language ids to
// display names. Best effort: returns "" when the listing fails.
func targetLanguageNames(ctx context.Context, cw *crowdin.Client, project *crowdin.Project) string {
	if len(project.TargetLanguageIDs) == 0 {
		return ""
	}
	langs, err := cw.ListLanguages(ctx)
	if err != nil {
		logWarning("listing languages: %v", err)
		return ""
	}
	return joinLanguageNames(project.TargetLanguageIDs, langs)
}

func joinLanguageNames(ids []string, langs []crowdin.Language) string {
	names := make(map[string]string, len(langs))
	for _, l := range langs {
		names[l.ID] = l.Name
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		if name, ok := names[id]; ok {
			out[i] = name
		} else {
			out[i] = id
		}
	}
	return strings.Join(out, ", ")
}

// firstEnabledAIProvider picks the default Crowdin AI provider.
func firstEnabledAIProvider(ctx context.Context, cw *crowdin.Client, userID int64) (int64, error) {
	providers, err := cw.ListAIProviders(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("listing crowdin AI providers: %w", err)
	}
	for _, p := range providers {
		if p.IsEnabled {
			logInfo("Using Crowdin AI provider %q (id %d)", p.Name, p.ID)
			return p.ID, nil
		}
	}
	return 0, fmt.Errorf("no enabled AI provider in the Crowdin account; configure one or pass --crowdinAiId")
}

// listContainers groups the project's strings: one container per remote
// file for file-based projects, per branch for strings-based ones, or a
// single container when a CroQL query selects the strings directly.
// A container whose string listing fails is skipped with a warning.
func listContainers(ctx context.Context, cw *crowdin.Client, project *crowdin.Project, a harvestArgs) ([]harvest.Container, error) {
	if a.croql != "" {
		strs, err := cw.ListStrings(ctx, project.ID, crowdin.StringsFilter{CroQL: a.croql})
		if err != nil {
			return nil, err
		}
		return []harvest.Container{{Name: "croql", Strings: toPointers(strs)}}, nil
	}

	if project.IsStringsBased() {
		branches, err := cw.ListBranches(ctx, project.ID)
		if err != nil {
			return nil, err
		}
		var containers []harvest.Container
		for _, b := range branches {
			strs, err := cw.ListStrings(ctx, project.ID, crowdin.StringsFilter{BranchID: b.ID})
			if err != nil {
				logWarning("skipping branch %s: %v", b.Name, err)
				continue
			}
			containers = append(containers, harvest.Container{Name: b.Name, Strings: toPointers(strs)})
		}
		return containers, nil
	}

	files, err := cw.ListFiles(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	var containers []harvest.Container
	for _, f := range files {
		if a.crowdinFiles != "" {
			match, err := doublestar.Match(a.crowdinFiles, strings.TrimPrefix(f.Path, "/"))
			if err != nil {
				return nil, fmt.Errorf("invalid --crowdinFiles glob: %w", err)
			}
			if !match {
				continue
			}
		}
		strs, err := cw.ListStrings(ctx, project.ID, crowdin.StringsFilter{FileID: f.ID})
		if err != nil {
			logWarning("skipping file %s: %v", f.Path, err)
			continue
		}
		containers = append(containers, harvest.Container{Name: f.Path, Strings: toPointers(strs)})
	}
	return containers, nil
}

func toPointers(strs []crowdin.String) []*crowdin.String {
	out := make([]*crowdin.String, len(strs))
	for i := range strs {
		out[i] = &strs[i]
	}
	return out
}

func containerNoun(project *crowdin.Project) string {
	if project.IsStringsBased() {
		return "branches"
	}
	return "files"
}

func parseScreen(s string) (prompt.ScreenMode, error) {
	switch s {
	case "", "none":
		return prompt.ScreenNone, nil
	case "keys":
		return prompt.ScreenKeys, nil
	case "texts":
		return prompt.ScreenTexts, nil
	default:
		return "", fmt.Errorf("unknown screen mode %q (valid: none, keys, texts)", s)
	}
}

func parseStrategy(s string) (harvest.Strategy, error) {
	switch s {
	case "", "batch":
		return harvest.StrategyBatch, nil
	case "agent":
		return harvest.StrategyAgent, nil
	default:
		return "", fmt.Errorf("unknown strategy %q (valid: batch, agent)", s)
	}
}

// logProgress reports completed units as log lines.
type logProgress struct{}

func (logProgress) Start(label string) { logInfo("%s", label) }
func (logProgress) Increment(n int, meta string) {
	logInfo("  +%d (%s)", n, meta)
}
func (logProgress) Stop() {}
