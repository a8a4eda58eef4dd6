package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fieldpilot/internal/cache"
	"fieldpilot/internal/classify"
	"fieldpilot/internal/config"
	"fieldpilot/internal/embedding"
	"fieldpilot/internal/ingest"
	"fieldpilot/internal/learning"
	"fieldpilot/internal/llm"
	"fieldpilot/internal/logging"
	"fieldpilot/internal/orchestrator"
	"fieldpilot/internal/prompt"
	"fieldpilot/internal/retrieval"
	"fieldpilot/internal/store"
	"fieldpilot/internal/types"
	"fieldpilot/internal/vecindex"
)

var (
	// Global flags
	verbose   bool
	workspace string
	profileID string

	// fill flags
	fillDomain string
	noCache    bool
	outputPath string

	// ingest flags
	docType string
	watch   bool

	// profile set flags
	fieldCategory  string
	fieldEncrypted bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "fieldpilot",
	Short: "fieldpilot - hybrid form field resolution",
	Long: `fieldpilot resolves web form fields against a local profile.

Deterministic profile matching handles the common fields; the remainder goes
through retrieval-augmented LLM generation, validated before anything is
accepted. Corrections made during review are learned and retrieved on
future fills. All profile data stays in a local SQLite store.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			workspace, err = config.FindWorkspaceRoot()
			if err != nil {
				return fmt.Errorf("failed to locate workspace: %w", err)
			}
		}
		if err := logging.Initialize(workspace); err != nil {
			return fmt.Errorf("failed to initialize file logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// fillCmd resolves one form
var fillCmd = &cobra.Command{
	Use:   "fill [form.json]",
	Short: "Resolve a detected form against a profile",
	Long: `Reads a detected form (domain plus field descriptors, JSON) and emits the
resolved field mappings as JSON.

The form file shape:
  {"domain": "example.com", "fields": [{"id": "f1", "kind": "text", "name": "fname", ...}]}

Pass "-" to read the form from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runFill,
}

// ingestCmd ingests profile knowledge
var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a text file into a profile's retrieval index",
	Long: `Chunks, embeds, and indexes a text file for a profile. Without --doc-type
the file becomes the profile's knowledge base; with it, a typed document
(resume, bio, ...). Re-ingesting replaces the previous vectors of the same
source.

With --watch, the file is re-ingested every time it changes until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

// profileCmd groups profile management
var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage profiles",
}

var profileSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a profile field",
	Args:  cobra.ExactArgs(2),
	RunE:  runProfileSet,
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a profile's fields and learned history",
	RunE:  runProfileShow,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profile ids",
	RunE:  runProfileList,
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a profile and everything derived from it",
	RunE:  runProfileDelete,
}

// statsCmd reports index and cache statistics
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show vector index and learning statistics for a profile",
	RunE:  runStats,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace root (default: nearest .fieldpilot)")
	rootCmd.PersistentFlags().StringVarP(&profileID, "profile", "p", "default", "profile id")

	fillCmd.Flags().StringVar(&fillDomain, "domain", "", "override the form's domain")
	fillCmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the response cache")
	fillCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write mappings JSON to a file instead of stdout")

	ingestCmd.Flags().StringVar(&docType, "doc-type", "", "ingest as a typed document instead of the knowledge base")
	ingestCmd.Flags().BoolVar(&watch, "watch", false, "re-ingest whenever the file changes")

	profileSetCmd.Flags().StringVar(&fieldCategory, "category", "", "field category (personal, work, ...)")
	profileSetCmd.Flags().BoolVar(&fieldEncrypted, "encrypted", false, "mark the value as encrypted at rest")

	profileCmd.AddCommand(profileSetCmd, profileShowCmd, profileListCmd, profileDeleteCmd)
	rootCmd.AddCommand(fillCmd, ingestCmd, profileCmd, statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// services is the wired pipeline shared by the subcommands.
type services struct {
	cfg      config.Config
	store    *store.LocalStore
	gateway  *embedding.Gateway
	index    *vecindex.Index
	ingest   *ingest.Service
	cache    *cache.Service
	learning *learning.Service
	orch     *orchestrator.Orchestrator
}

func buildServices() (*services, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	loadPatternOverlay()

	st, err := store.NewLocalStore(filepath.Join(workspace, ".fieldpilot", "fieldpilot.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		st.Close()
		return nil, err
	}
	gateway := embedding.NewGateway(engine, cfg.Embedding.CacheSize, cfg.Embedding.BatchSize)
	index := vecindex.New(st)
	ing := ingest.NewService(gateway, index)
	ca := cache.NewService(st, cfg.Limits.CacheTTL())
	le := learning.NewService(st, ing, ca, cfg.Limits.LearnThreshold, cfg.Limits.MaxLearnedExamples)

	var chat llm.ChatClient
	if cfg.LLM.Configured() {
		chat, err = llm.NewClient(cfg.LLM)
		if err != nil {
			st.Close()
			return nil, err
		}
	} else {
		logger.Warn("no LLM API key configured; fills degrade to static matching")
	}

	assembler := retrieval.NewAssembler(gateway, index, cfg.Limits.TopK, cfg.Limits.SimilarityThreshold, cfg.Limits.ContextTokenBudget)
	prompts := prompt.NewBuilder(cfg.Limits.PromptTokenBudget)
	orch := orchestrator.New(cfg.LLM, chat, assembler, prompts, ca, le,
		orchestrator.WithProgress(func(ev orchestrator.Event) {
			logger.Debug("fill progress",
				zap.String("profile", ev.ProfileID),
				zap.String("phase", string(ev.Phase)),
				zap.String("detail", ev.Detail))
		}))

	return &services{
		cfg:      cfg,
		store:    st,
		gateway:  gateway,
		index:    index,
		ingest:   ing,
		cache:    ca,
		learning: le,
		orch:     orch,
	}, nil
}

func (s *services) Close() {
	if err := s.store.Close(); err != nil {
		logger.Warn("store close failed", zap.Error(err))
	}
}

// loadProfile fetches the active profile, creating an empty one for set
// operations when create is true.
func (s *services) loadProfile(create bool) (*types.Profile, error) {
	p, err := s.store.GetProfile(profileID)
	if err == nil {
		return p, nil
	}
	if err == store.ErrNotFound && create {
		return &types.Profile{ID: profileID, Settings: types.FillSettings{UseCache: true}}, nil
	}
	if err == store.ErrNotFound {
		return nil, fmt.Errorf("profile %q does not exist (create it with 'fieldpilot profile set')", profileID)
	}
	return nil, err
}

// formInput is the fill command's wire shape.
type formInput struct {
	Domain string                  `json:"domain"`
	Fields []types.FieldDescriptor `json:"fields"`
}

// fillOutput is what the fill command emits.
type fillOutput struct {
	Domain     string                 `json:"domain"`
	Source     string                 `json:"source"`
	Mappings   []types.FieldMapping   `json:"mappings"`
	Unresolved []types.FieldSignature `json:"unresolved,omitempty"`
	TokensUsed int                    `json:"tokens_used,omitempty"`
	Fallback   string                 `json:"fallback_reason,omitempty"`
}

func runFill(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	data, err := readInput(args[0])
	if err != nil {
		return err
	}
	var in formInput
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("failed to parse form input: %w", err)
	}
	if fillDomain != "" {
		in.Domain = fillDomain
	}
	if len(in.Fields) == 0 {
		return fmt.Errorf("form has no fields")
	}

	profile, err := svc.loadProfile(false)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	form := svc.orch.Detect(in.Domain, in.Fields)
	start := time.Now()
	result, err := svc.orch.Resolve(ctx, form, profile, !noCache)
	if err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}

	logger.Info("form resolved",
		zap.String("domain", form.Domain),
		zap.String("source", result.Source),
		zap.Int("mappings", len(result.Mappings)),
		zap.Int("unresolved", len(result.Unresolved)),
		zap.Duration("took", time.Since(start)))

	out := fillOutput{
		Domain:     form.Domain,
		Source:     result.Source,
		Mappings:   result.Mappings,
		Unresolved: result.Unresolved,
		TokensUsed: result.TokensUsed,
		Fallback:   result.FallbackReason,
	}
	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	if outputPath != "" {
		return os.WriteFile(outputPath, append(encoded, '\n'), 0644)
	}
	fmt.Println(string(encoded))
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	path := args[0]
	profile, err := svc.loadProfile(true)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	ingestOnce := func() error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		text := string(data)
		var chunks int
		if docType != "" {
			doc := types.ContextDocument{ID: filepath.Base(path), Text: text, Type: docType}
			chunks, err = svc.ingest.IngestDocument(ctx, profile.ID, doc, svc.cfg.Limits.ChunkSize)
			if err == nil {
				upsertDocument(profile, doc)
			}
		} else {
			chunks, err = svc.ingest.IngestKnowledgeBase(ctx, profile.ID, text, svc.cfg.Limits.ChunkSize)
			if err == nil {
				profile.KnowledgeBase = path
				profile.KBChunks = chunks
			}
		}
		if err != nil {
			return err
		}
		if err := svc.store.SaveProfile(profile); err != nil {
			return err
		}
		// Indexed knowledge changed; cached fills may now be stale.
		if err := svc.cache.Invalidate(profile.ID); err != nil {
			logger.Warn("cache invalidation failed", zap.Error(err))
		}
		logger.Info("ingested", zap.String("file", path), zap.Int("chunks", chunks))
		fmt.Printf("Ingested %s: %d chunks\n", path, chunks)
		return nil
	}

	if err := ingestOnce(); err != nil {
		return err
	}
	if !watch {
		return nil
	}
	return watchAndReingest(ctx, path, ingestOnce)
}

// watchAndReingest re-runs ingestOnce on file writes until ctx is canceled.
// Editors often replace files instead of writing in place, so the watch is
// re-armed on rename/remove events.
func watchAndReingest(ctx context.Context, path string, ingestOnce func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	fmt.Printf("Watching %s (Ctrl-C to stop)\n", path)

	// Debounce bursts of write events into one re-ingest.
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				pending = time.After(500 * time.Millisecond)
			}
			if ev.Op&(fsnotify.Rename|fsnotify.Remove) != 0 {
				// Re-arm: the path may reappear after an atomic replace.
				time.Sleep(100 * time.Millisecond)
				if err := watcher.Add(path); err == nil {
					pending = time.After(500 * time.Millisecond)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", zap.Error(err))
		case <-pending:
			pending = nil
			if err := ingestOnce(); err != nil {
				logger.Warn("re-ingest failed", zap.Error(err))
			}
		}
	}
}

func runProfileSet(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	profile, err := svc.loadProfile(true)
	if err != nil {
		return err
	}

	key, value := args[0], args[1]
	profile.SetField(key, value)
	for i := range profile.Fields {
		if profile.Fields[i].Key == key {
			profile.Fields[i].Category = fieldCategory
			profile.Fields[i].IsEncrypted = fieldEncrypted
		}
	}
	if err := svc.store.SaveProfile(profile); err != nil {
		return err
	}
	// Profile values feed cached fills directly.
	if err := svc.cache.Invalidate(profile.ID); err != nil {
		logger.Warn("cache invalidation failed", zap.Error(err))
	}
	fmt.Printf("Set %s on profile %s\n", key, profile.ID)
	return nil
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	profile, err := svc.loadProfile(false)
	if err != nil {
		return err
	}

	fmt.Printf("Profile: %s\n", profile.ID)
	for _, f := range profile.Fields {
		value := f.Value
		if f.IsEncrypted {
			value = "<encrypted>"
		}
		if f.Category != "" {
			fmt.Printf("  %s = %s (%s)\n", f.Key, value, f.Category)
		} else {
			fmt.Printf("  %s = %s\n", f.Key, value)
		}
	}
	if profile.KnowledgeBase != "" {
		fmt.Printf("Knowledge base: %s (%d chunks)\n", profile.KnowledgeBase, profile.KBChunks)
	}
	if len(profile.Documents) > 0 {
		fmt.Printf("Documents: %d\n", len(profile.Documents))
	}
	if len(profile.Learned) > 0 {
		fmt.Printf("Learned examples: %d (latest %s on %s)\n",
			len(profile.Learned),
			profile.Learned[0].CreatedAt.Format("2006-01-02"),
			profile.Learned[0].Domain)
	}
	return nil
}

func runProfileList(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	ids, err := svc.store.ListProfileIDs()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No profiles")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func runProfileDelete(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.index.DeleteByProfile(profileID); err != nil {
		return err
	}
	if err := svc.cache.Invalidate(profileID); err != nil {
		return err
	}
	if err := svc.store.DeleteProfile(profileID); err != nil {
		return err
	}
	fmt.Printf("Deleted profile %s\n", profileID)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	profile, err := svc.loadProfile(false)
	if err != nil {
		return err
	}

	stats, err := svc.store.VectorStats(profile.ID)
	if err != nil {
		return err
	}
	total := 0
	kinds := make([]string, 0, len(stats))
	for kind, n := range stats {
		total += n
		kinds = append(kinds, fmt.Sprintf("  %s: %d", kind, n))
	}
	sort.Strings(kinds)

	fmt.Printf("Profile: %s\n", profile.ID)
	fmt.Printf("Vectors: %d\n", total)
	for _, line := range kinds {
		fmt.Println(line)
	}
	fmt.Printf("Learned examples: %d\n", len(profile.Learned))
	fmt.Printf("Embedding cache: %d entries (%s, %d dims)\n",
		svc.gateway.CacheLen(), svc.gateway.Name(), svc.gateway.Dimensions())
	return nil
}

// upsertDocument records the document on the profile, replacing any prior
// entry with the same id.
func upsertDocument(profile *types.Profile, doc types.ContextDocument) {
	for i := range profile.Documents {
		if profile.Documents[i].ID == doc.ID {
			profile.Documents[i] = doc
			return
		}
	}
	profile.Documents = append(profile.Documents, doc)
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return os.ReadFile("/dev/stdin")
	}
	return os.ReadFile(path)
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// loadPatternOverlay merges .fieldpilot/patterns.yaml into the classifier
// tables when the file exists.
func loadPatternOverlay() {
	path := filepath.Join(workspace, ".fieldpilot", "patterns.yaml")
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := classify.LoadPatternOverlay(path); err != nil {
		logger.Warn("pattern overlay rejected", zap.Error(err))
	}
}
