// =============================================================================
// AgentCore 主入口
// =============================================================================
// 命令行入口：加载配置、装配核心、校验与执行工作流定义
//
// 使用方法:
//
//	agentcore run --workflows flows.yaml --id my-flow   # 执行工作流
//	agentcore validate --workflows flows.yaml           # 校验工作流定义
//	agentcore version                                   # 显示版本信息
// =============================================================================
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/civant/agentcore"
	"github.com/civant/agentcore/config"
	"github.com/civant/agentcore/workflow"
)

// 版本信息（构建时注入）
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
		runWorkflow(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// runWorkflow 装配核心并执行一个工作流。
// Agent 的注册由调用方以库的方式完成；二进制入口只覆盖纯映射/条件流，
// 主要用于排查定义问题。
func runWorkflow(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	workflowsPath := fs.String("workflows", "", "Path to workflow definitions (YAML)")
	workflowID := fs.String("id", "", "Workflow id to execute")
	inputJSON := fs.String("input", "{}", "Workflow input as JSON")
	fs.Parse(args)

	if *workflowsPath == "" || *workflowID == "" {
		fmt.Fprintln(os.Stderr, "run requires --workflows and --id")
		os.Exit(1)
	}

	cfg, err := config.NewLoader().WithConfigPath(*configPath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	core, err := agentcore.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build core: %v\n", err)
		os.Exit(1)
	}
	defer core.Close()

	logger := core.Logger()
	logger.Info("Starting AgentCore",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	data, err := os.ReadFile(*workflowsPath)
	if err != nil {
		logger.Fatal("Failed to read workflow definitions", zap.Error(err))
	}
	n, err := core.Workflows().LoadDefinitions(data)
	if err != nil {
		logger.Fatal("Failed to load workflow definitions", zap.Error(err))
	}
	logger.Info("Workflow definitions loaded", zap.Int("count", n))

	var input map[string]any
	if err := json.Unmarshal([]byte(*inputJSON), &input); err != nil {
		logger.Fatal("Invalid --input JSON", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := core.Workflows().Execute(ctx, *workflowID, input)
	if err != nil {
		logger.Fatal("Workflow execution failed", zap.Error(err))
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))

	if result.Status != workflow.StatusSuccess {
		os.Exit(1)
	}
}

// runValidate 只解析并校验工作流定义，不执行。
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	workflowsPath := fs.String("workflows", "", "Path to workflow definitions (YAML)")
	fs.Parse(args)

	if *workflowsPath == "" {
		fmt.Fprintln(os.Stderr, "validate requires --workflows")
		os.Exit(1)
	}

	data, err := os.ReadFile(*workflowsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read file: %v\n", err)
		os.Exit(1)
	}

	defs, err := workflow.ParseDefinitions(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid: %v\n", err)
		os.Exit(1)
	}

	for _, def := range defs {
		fmt.Printf("%s: %d step(s)\n", def.ID, len(def.Steps))
	}
	fmt.Printf("OK (%d workflow(s))\n", len(defs))
}

func printVersion() {
	fmt.Printf("AgentCore %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`AgentCore - in-process multi-agent orchestration core

Usage:
  agentcore run --workflows <file> --id <workflow> [--input <json>] [--config <file>]
  agentcore validate --workflows <file>
  agentcore version`)
}
