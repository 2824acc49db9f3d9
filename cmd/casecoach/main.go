package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/casecoach/internal/cases"
	"github.com/pavelanni/casecoach/internal/feedback"
	"github.com/pavelanni/casecoach/internal/handler"
	appI18n "github.com/pavelanni/casecoach/internal/i18n"
	"github.com/pavelanni/casecoach/internal/interview"
	"github.com/pavelanni/casecoach/internal/llm"
	"github.com/pavelanni/casecoach/internal/llm/prompts"
	"github.com/pavelanni/casecoach/internal/model"
	"github.com/pavelanni/casecoach/internal/session"
	"github.com/pavelanni/casecoach/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "casecoach",
		Short: "Consulting case-interview practice server",
	}

	serve := serveCmd()
	root.AddCommand(serve, playCmd(), casesCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `casecoach --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP practice server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "casecoach.db", "SQLite database path")
	f.StringSliceP("cases", "c", nil, "Extra case script YAML files (repeatable)")
	f.StringP("lang", "l", "en", "Default UI language (en, de)")
	f.String("session-store", string(session.StoreTypeMemory), "Live session store (memory, redis)")
	f.String("redis-addr", "localhost:6379", "Redis address for the redis session store")
	f.String("redis-password", "", "Redis password")
	f.Int("redis-db", 0, "Redis database number")
	f.Duration("session-ttl", session.DefaultTTL, "How long an idle interview is kept")
	f.Duration("typing-delay", -1, "Fixed interviewer typing delay (negative = per-case setting)")
	f.String("llm-url", "", "OpenAI-compatible API base URL for debriefs (empty = disabled)")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("debrief-variant", string(prompts.VariantStandard), "Debrief prompt variant (concise, standard, detailed)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /practice)")
	f.Bool("secure-cookies", true, "Set Secure flag on cookies")
	f.String("admin-password", "", "Admin password, created or reset on start (or set CASECOACH_ADMIN_PASSWORD)")
	addLogFlags(cmd)
	return cmd
}

func playCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play <case-id>",
		Short: "Practise a case in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  runPlay,
	}
	cmd.Flags().StringSliceP("cases", "c", nil, "Extra case script YAML files (repeatable)")
	cmd.Flags().StringP("lang", "l", "en", "Feedback language (en, de)")
	addLogFlags(cmd)
	return cmd
}

func casesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cases",
		Short: "List the case catalog",
		RunE:  runCases,
	}
	cmd.Flags().StringSliceP("cases", "c", nil, "Extra case script YAML files (repeatable)")
	cmd.Flags().String("category", "", "Only cases of this category")
	cmd.Flags().String("difficulty", "", "Only cases of this difficulty")
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all attempts as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "casecoach.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("CASECOACH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("casecoach")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/casecoach")
	v.AddConfigPath("/etc/casecoach")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// loadCatalog returns the embedded cases plus the given script files.
func loadCatalog(files []string) (*cases.Catalog, error) {
	catalog, err := cases.Default()
	if err != nil {
		return nil, fmt.Errorf("load embedded cases: %w", err)
	}
	for _, f := range files {
		if _, err := catalog.LoadFile(f); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

// loadUploadedCases adds the scripts uploaded through the admin page. A script
// that no longer parses or clashes with a file-based case is skipped.
func loadUploadedCases(db *store.Store, catalog *cases.Catalog) error {
	scripts, err := db.ListCaseScripts()
	if err != nil {
		return err
	}
	for _, cs := range scripts {
		sc, err := cases.Parse(cs.Source)
		if err != nil {
			slog.Warn("skipping invalid uploaded case", "case_id", cs.CaseID, "error", err)
			continue
		}
		if err := catalog.Add(sc); err != nil {
			slog.Warn("skipping uploaded case", "case_id", cs.CaseID, "error", err)
			continue
		}
		slog.Info("uploaded case loaded", "case_id", sc.ID, "sha256", cs.SHA256)
	}
	return nil
}

func openSessionStore(ctx context.Context, v *viper.Viper) (session.Store, error) {
	storeType := session.StoreType(strings.ToLower(v.GetString("session-store")))
	opts := []session.StoreOption{session.WithTTL(v.GetDuration("session-ttl"))}
	if storeType == session.StoreTypeRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     v.GetString("redis-addr"),
			Password: v.GetString("redis-password"),
			DB:       v.GetInt("redis-db"),
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping %s: %w", v.GetString("redis-addr"), err)
		}
		opts = append(opts, session.WithRedisClient(client))
	}
	return session.NewStore(storeType, opts...)
}

func engineOptions(v *viper.Viper) []interview.Option {
	d := v.GetDuration("typing-delay")
	if d < 0 {
		return nil
	}
	return []interview.Option{interview.WithTypingDelay(interview.TypingDelay{Min: d, Max: d})}
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if pw := v.GetString("admin-password"); pw != "" {
		if err := db.EnsureAdmin("admin", pw); err != nil {
			return fmt.Errorf("ensure admin: %w", err)
		}
	} else if n, err := db.UserCount(); err == nil && n == 0 {
		slog.Warn("no admin user: set --admin-password or CASECOACH_ADMIN_PASSWORD to enable /admin")
	}
	if n, err := db.PurgeExpiredAuthSessions(time.Now()); err != nil {
		slog.Warn("failed to purge expired auth sessions", "error", err)
	} else if n > 0 {
		slog.Info("purged expired auth sessions", "count", n)
	}

	catalog, err := loadCatalog(v.GetStringSlice("cases"))
	if err != nil {
		return fmt.Errorf("load cases: %w", err)
	}
	if err := loadUploadedCases(db, catalog); err != nil {
		return fmt.Errorf("load uploaded cases: %w", err)
	}

	sessions, err := openSessionStore(ctx, v)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer sessions.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	variant := strings.ToLower(strings.TrimSpace(v.GetString("debrief-variant")))
	if !prompts.IsValidVariant(variant) {
		slog.Warn("invalid debrief-variant, using standard", "variant", variant)
		variant = string(prompts.VariantStandard)
	}

	var llmClient *llm.Client
	if url := v.GetString("llm-url"); url != "" {
		llmClient = llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"))
		if err != nil {
			return fmt.Errorf("create LLM client: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := llmClient.Ping(pingCtx); err != nil {
			slog.Warn("LLM health check failed, debriefs may be unavailable", "url", url, "error", err)
		} else {
			slog.Info("LLM endpoint OK", "url", url, "model", v.GetString("llm-model"))
		}
		cancel()
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.ServerConfig{
		BasePath:       basePath,
		SecureCookies:  v.GetBool("secure-cookies"),
		DebriefVariant: variant,
		DebriefEnabled: llmClient != nil,
	}

	h, err := handler.New(db, sessions, catalog, llmClient, cfg, engineOptions(v)...)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"cases", catalog.Len(),
		"lang", lang,
		"session_store", v.GetString("session-store"),
		"debrief", cfg.DebriefEnabled,
		"debrief_variant", variant,
		"base_path", basePath,
	)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func runCases(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	catalog, err := loadCatalog(v.GetStringSlice("cases"))
	if err != nil {
		return fmt.Errorf("load cases: %w", err)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tDIFFICULTY")
	for _, sc := range catalog.List(cases.Filter{
		Category:   v.GetString("category"),
		Difficulty: v.GetString("difficulty"),
	}) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", sc.ID, sc.Title, sc.Category, sc.Difficulty)
	}
	return tw.Flush()
}

func runPlay(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	catalog, err := loadCatalog(v.GetStringSlice("cases"))
	if err != nil {
		return fmt.Errorf("load cases: %w", err)
	}
	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	var result *interview.Completion
	engine := interview.NewEngine(catalog,
		interview.WithTypingDelay(interview.TypingDelay{}),
		interview.WithReporter(interview.ReporterFunc(func(_ context.Context, c interview.Completion) error {
			result = &c
			return nil
		})),
	)
	st, err := engine.Start(args[0], uuid.NewString())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Type your answers. /hint asks for a hint, /quit leaves.")
	printMessages(out, st.Messages)

	in := bufio.NewScanner(cmd.InOrStdin())
	for !st.Complete() {
		fmt.Fprint(out, "> ")
		if !in.Scan() {
			break
		}
		line := strings.TrimSpace(in.Text())
		var turn interview.Turn
		switch line {
		case "/quit":
			return nil
		case "/hint":
			turn, err = engine.Hint(ctx, st)
		default:
			turn, err = engine.Submit(ctx, st, line)
		}
		if err != nil {
			return err
		}
		printMessages(out, turn.Messages)
	}
	if err := in.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if result == nil {
		return nil
	}

	fmt.Fprintf(out, "\nScore: %d/100  Time: %s  Hints: %d\n",
		result.Score, result.Elapsed.Round(time.Second), result.HintsUsed)
	report := feedback.Heuristic(st.Messages)
	for _, id := range report.Strengths {
		fmt.Fprintln(out, "  +", appI18n.T(ctx, id))
	}
	for _, id := range report.Improvements {
		fmt.Fprintln(out, "  -", appI18n.T(ctx, id))
	}
	return nil
}

func printMessages(w io.Writer, msgs []model.Message) {
	for _, m := range msgs {
		switch m.Role {
		case model.RoleStudent:
			continue
		case model.RoleSystem:
			fmt.Fprintf(w, "\n%s\n\n", m.Text)
		default:
			prefix := "Interviewer"
			if m.Tag == model.TagHint {
				prefix = "Hint"
			}
			fmt.Fprintf(w, "%s: %s\n", prefix, m.Text)
		}
	}
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportAll()
	if err != nil {
		return fmt.Errorf("export attempts: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported attempts", "count", export.NumAttempts, "output", outPath)
	return nil
}
