// Command agentcore runs the multi-agent orchestration engine.
//
// Usage:
//
//	agentcore run "summarize the deployment scripts"   # process a request
//	agentcore run --config config.yaml "..."           # with a config file
//	agentcore stats --config config.yaml               # print saved-state stats
//	agentcore version
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/scriptvault/agentcore/config"
	"github.com/scriptvault/agentcore/memory"
	"github.com/scriptvault/agentcore/orchestrator"
	"github.com/scriptvault/agentcore/statestore"
	"github.com/scriptvault/agentcore/types"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runRequest(os.Args[2:])
	case "stats":
		runStats(os.Args[2:])
	case "version":
		fmt.Printf("agentcore %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage:
  agentcore run [--config path] <request>   process a user request
  agentcore stats [--config path]           print stats from saved state
  agentcore version                         print version information`)
}

func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, *zap.Logger, []string) {
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := cfg.Log.BuildLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger, fs.Args()
}

func buildSystem(cfg *config.Config, logger *zap.Logger) *orchestrator.MultiAgentSystem {
	return orchestrator.NewMultiAgentSystem(orchestrator.Config{
		AgentMemory: memory.SystemConfig{
			WorkingCapacity:  cfg.Memory.WorkingCapacity,
			LongTermPath:     cfg.Memory.LongTermPath,
			AutoSaveInterval: cfg.Memory.AutoSaveInterval,
			MaxEpisodes:      cfg.Memory.MaxEpisodes,
		},
		CascadeFailure: cfg.Orchestrator.CascadeFailure,
	}, logger)
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (statestore.Store, error) {
	if cfg.State.Backend == "redis" {
		return statestore.NewRedisStore(ctx, statestore.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.TTL,
		}, logger)
	}
	return statestore.NewFileStore(cfg.State.Dir, logger)
}

func runRequest(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfg, logger, rest := loadConfig(fs, args)
	defer logger.Sync()

	if len(rest) == 0 {
		fmt.Fprintln(os.Stderr, "run: missing request text")
		os.Exit(1)
	}
	request := rest[0]

	ctx := context.Background()
	system := buildSystem(cfg, logger)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open state store", zap.Error(err))
	}
	defer store.Close()

	// Resume from a previous run when saved state exists.
	system.LoadFrom(ctx, store, cfg.State.Key)

	if _, ok := system.AgentByRole(types.RoleExecutor); !ok {
		system.AddAgent(ctx, "Executor", types.RoleExecutor, types.NewCapabilitySet(
			types.CapToolUse,
			types.CapCodeGeneration,
			types.CapOptimization,
		))
	}
	if _, ok := system.AgentByRole(types.RoleAnalyst); !ok {
		system.AddAgent(ctx, "Analyst", types.RoleAnalyst, types.NewCapabilitySet(
			types.CapScriptAnalysis,
			types.CapSecurityAnalysis,
			types.CapReasoning,
		))
	}

	taskID := system.ProcessUserRequest(ctx, request)
	if taskID == "" {
		logger.Fatal("request was not accepted")
	}

	if !system.SaveTo(ctx, store, cfg.State.Key) {
		os.Exit(1)
	}

	if cfg.Memory.ArchivePath != "" {
		archiveSystemMemory(ctx, cfg.Memory.ArchivePath, system, logger)
	}

	task, _ := system.Task(taskID)
	out, _ := json.MarshalIndent(map[string]any{
		"task_id": taskID,
		"status":  task.Status,
		"stats":   system.Stats(),
	}, "", "  ")
	fmt.Println(string(out))
}

func archiveSystemMemory(ctx context.Context, path string, system *orchestrator.MultiAgentSystem, logger *zap.Logger) {
	archive, err := memory.NewSQLiteArchive(ctx, path, logger)
	if err != nil {
		logger.Warn("failed to open memory archive", zap.Error(err))
		return
	}
	defer archive.Close()

	n, err := archive.Archive(ctx, system.SystemMemory().LongTermMemory())
	if err != nil {
		logger.Warn("failed to archive long-term memory", zap.Error(err))
		return
	}
	logger.Info("archived long-term memory", zap.Int("entries", n))
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	cfg, logger, _ := loadConfig(fs, args)
	defer logger.Sync()

	ctx := context.Background()
	system := buildSystem(cfg, logger)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open state store", zap.Error(err))
	}
	defer store.Close()

	if !system.LoadFrom(ctx, store, cfg.State.Key) {
		fmt.Fprintln(os.Stderr, "no saved state found")
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(system.Stats(), "", "  ")
	fmt.Println(string(out))
}
