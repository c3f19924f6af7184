package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/parley/internal/chat"
	"github.com/haasonsaas/parley/internal/commands"
	"github.com/haasonsaas/parley/internal/config"
	"github.com/haasonsaas/parley/internal/conversation"
	"github.com/haasonsaas/parley/internal/fileops"
	"github.com/haasonsaas/parley/internal/history"
	"github.com/haasonsaas/parley/internal/mcp"
	"github.com/haasonsaas/parley/internal/providers"
	"github.com/haasonsaas/parley/internal/research"
	"github.com/haasonsaas/parley/pkg/models"
)

// sessionFlags are shared by every conversation-running subcommand.
type sessionFlags struct {
	configPath string
	model      string
	thinking   string
	workdir    string
	historyIn  string
	noMarkdown bool
	stt        bool
	verbose    bool
	debug      bool
}

func addSessionFlags(cmd *cobra.Command, flags *sessionFlags) {
	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&flags.model, "model", "m", "", "provider/model spec, overrides the config")
	cmd.Flags().StringVar(&flags.thinking, "thinking", "", "extended thinking level: off, low, medium or high")
	cmd.Flags().StringVarP(&flags.workdir, "workdir", "w", "", "working directory for file commands and saves")
	cmd.Flags().StringVar(&flags.historyIn, "resume", "", "history file to restore before the first cycle")
	cmd.Flags().BoolVar(&flags.noMarkdown, "no-markdown", false, "print assistant output without markup styling")
	cmd.Flags().BoolVar(&flags.stt, "stt", false, "enable speech-to-text input via /speak")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable info-level logging")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "enable debug-level logging")
}

// sessionOptions carry per-subcommand behaviour into runSession.
type sessionOptions struct {
	agentMode bool
	role      mcp.Role
	budget    int

	// seed, when set, is recorded as an invisible user instruction before
	// the first cycle.
	seed string

	// extraServers supplements the configured MCP servers for this role,
	// as "name=command line" pairs.
	extraServers map[string]string
}

func buildChatCmd() *cobra.Command {
	var flags sessionFlags
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Chat runs a turn-based conversation in the terminal. The assistant can
use embedded commands to edit files and call configured tool servers.
Type /help inside the session for the available slash commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, flags, sessionOptions{role: mcp.RoleChat})
		},
	}
	addSessionFlags(cmd, &flags)
	return cmd
}

func buildAgentCmd() *cobra.Command {
	var flags sessionFlags
	var budget int
	cmd := &cobra.Command{
		Use:   "simple-agent [task]",
		Short: "Start a session with agent mode enabled",
		Long: `Simple-agent starts a conversation that keeps the assistant iterating
on its own until it runs the done command or exhausts the iteration
budget. An optional task argument is delivered as the first instruction.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := sessionOptions{
				agentMode: true,
				role:      mcp.RoleChat,
				budget:    budget,
			}
			if len(args) == 1 {
				opts.seed = args[0]
			}
			return runSession(cmd, flags, opts)
		},
	}
	addSessionFlags(cmd, &flags)
	cmd.Flags().IntVar(&budget, "budget", 0, "maximum autonomous iterations, 0 means unlimited")
	return cmd
}

func buildResearchCmd() *cobra.Command {
	var flags sessionFlags
	var budget int
	cmd := &cobra.Command{
		Use:   "research [server-command[:name]]...",
		Short: "Run an autonomous research session",
		Long: `Research runs the assistant in agent mode against the research-role tool
servers from the configuration. Positional arguments attach extra
servers for this session: each is a launch command with an optional
display name after a colon, e.g. "npx papers-mcp:papers".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			extra := map[string]string{}
			for _, spec := range args {
				name, command, err := parseServerSpec(spec)
				if err != nil {
					return err
				}
				extra[name] = command
			}
			return runSession(cmd, flags, sessionOptions{
				agentMode:    true,
				role:         mcp.RoleResearch,
				budget:       budget,
				extraServers: extra,
			})
		},
	}
	addSessionFlags(cmd, &flags)
	cmd.Flags().IntVar(&budget, "budget", 25, "maximum research iterations, 0 means unlimited")
	return cmd
}

// parseServerSpec splits "command line[:name]". The name suffix must be a
// bare identifier so colons inside the command itself are left alone.
func parseServerSpec(spec string) (name, command string, err error) {
	command = spec
	if i := strings.LastIndex(spec, ":"); i >= 0 {
		suffix := spec[i+1:]
		if suffix != "" && !strings.ContainsAny(suffix, " /\\.") {
			command, name = spec[:i], suffix
		}
	}
	command = strings.TrimSpace(command)
	if command == "" {
		return "", "", fmt.Errorf("empty server command in %q", spec)
	}
	if name == "" {
		fields := strings.Fields(command)
		name = filepath.Base(fields[0])
	}
	return name, command, nil
}

func buildUtilsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "utils",
		Short: "Inspection helpers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "config-path",
		Short: "Print the default config file location",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultPath()
			if path == "" {
				return fmt.Errorf("cannot determine the user config directory")
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "history-dump <file>",
		Short: "Print a saved conversation as text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := history.NewStore()
			if err := store.Load(args[0]); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, msg := range store.Messages() {
				text := msg.ContentForAssistant()
				if text == "" {
					continue
				}
				fmt.Fprintf(out, "%s> %s\n", msg.Author(), text)
			}
			return nil
		},
	})

	return cmd
}

func buildInfoCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the resolved configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "version:       %s\n", version)
			fmt.Fprintf(out, "default model: %s\n", cfg.DefaultModel)
			fmt.Fprintf(out, "working dir:   %s\n", cfg.WorkingDir)
			fmt.Fprintf(out, "chat servers:  %d\n", len(cfg.MCPServers.Chat))
			fmt.Fprintf(out, "research servers: %d\n", len(cfg.MCPServers.Research))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

// loadConfig resolves the config path: an explicit flag, then PARLEY_CONFIG,
// then the default location if a file exists there, then built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("PARLEY_CONFIG")
	}
	if path == "" {
		if p := config.DefaultPath(); p != "" {
			if _, err := os.Stat(p); err == nil {
				path = p
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ResolveAPIKeys()
	return cfg, nil
}

func buildLogger(cfg *config.Config, verbose, debug bool) *slog.Logger {
	level := slog.LevelWarn
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelInfo
	}
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// runSession assembles the conversation from the config and runs it until
// end of input.
func runSession(cmd *cobra.Command, flags sessionFlags, opts sessionOptions) error {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return err
	}
	if flags.workdir != "" {
		cfg.WorkingDir = flags.workdir
	}
	logger := buildLogger(cfg, flags.verbose, flags.debug)

	model := cfg.DefaultModel
	if flags.model != "" {
		model = flags.model
	}
	provider, err := providers.New(model, cfg.APIKeys, logger)
	if err != nil {
		return err
	}

	user := chat.NewUser(os.Stdin, os.Stdout, logger)
	user.SetPlainOutput(flags.noMarkdown)
	if flags.stt {
		// Speech capture is pluggable and no engine ships in this binary.
		user.Notify("Speech-to-text requested, but no transcriber is built in; /speak is disabled.")
	}

	files := fileops.NewHandler(cfg.WorkingDir, logger)
	files.Confirm = user.Confirm
	files.Notify = user.Notify

	env := &commands.Env{
		Dir:     cfg.WorkingDir,
		Notify:  user.Notify,
		Confirm: user.Confirm,
	}
	panel := chat.NewControlPanel(cfg, env, opts.agentMode, logger)
	user.SetHelpText(panel.HelpText)

	assistant := chat.NewAssistant(provider, panel, logger)
	assistant.SetAgentMode(opts.agentMode)
	if flags.thinking != "" {
		assistant.SetThinkingLevel(flags.thinking)
	}

	tools := mcp.NewManager(logger)
	for name, command := range cfg.MCPServers.Chat {
		tools.Add(mcp.RoleChat, name, command)
	}
	for name, command := range cfg.MCPServers.Research {
		tools.Add(mcp.RoleResearch, name, command)
	}
	for name, command := range opts.extraServers {
		tools.Add(opts.role, name, command)
	}
	ctx := cmd.Context()
	tools.Start(ctx)
	defer tools.StopAll()

	store := history.NewStore()
	if flags.historyIn != "" {
		if err := store.Load(flags.historyIn); err != nil {
			return err
		}
		user.InitializeFromHistory(store.Messages())
		assistant.InitializeFromHistory(store.Messages())
	}
	if opts.seed != "" {
		store.Append(models.NewInvisibleText(models.AuthorUser, opts.seed))
		store.Commit()
	}

	tracker := research.NewTracker(opts.budget)

	orch := conversation.New(conversation.Config{
		User:      user,
		Assistant: assistant,
		History:   store,
		Tools:     tools,
		Role:      opts.role,
		Files:     files,
		Budget:    tracker,
		SaveDir:   cfg.WorkingDir,
		Notify:    user.Notify,
		Confirm:   user.Confirm,
		Logger:    logger,
	})

	logger.Info("session starting", "model", provider.Name(), "agent_mode", opts.agentMode, "role", opts.role)
	err = orch.Run(ctx)

	for _, usage := range tools.UsageSummary() {
		if usage.Calls == 0 {
			continue
		}
		logger.Info("mcp server usage", "server", usage.Name,
			"calls", usage.Calls, "errors", usage.Errors,
			"last_latency", usage.LastLatency)
	}
	return err
}
