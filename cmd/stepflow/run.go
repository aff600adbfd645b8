package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/stepflow/config"
	"github.com/BaSui01/stepflow/workflow"
)

// =============================================================================
// ▶️ run 命令
// =============================================================================

// varFlags 收集可重复的 --var key=value
type varFlags []string

func (v *varFlags) String() string     { return strings.Join(*v, ",") }
func (v *varFlags) Set(s string) error { *v = append(*v, s); return nil }

func runWorkflow(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	templateID := fs.String("template", "", "Template to execute")
	varsFile := fs.String("vars-file", "", "YAML or JSON file with template variables")
	timeout := fs.Duration("timeout", 5*time.Minute, "Overall execution timeout")
	var vars varFlags
	fs.Var(&vars, "var", "Template variable key=value (repeatable)")
	_ = fs.Parse(args)

	if *templateID == "" {
		return fmt.Errorf("--template is required")
	}

	variables, err := loadVariables(*varsFile, vars)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cliLogConfig(cfg.Log))
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	rt, err := buildRuntime(ctx, cfg, logger, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.close(context.WithoutCancel(ctx))

	inst, _, runErr := rt.engine.Run(ctx, *templateID, variables)
	if inst == nil {
		return runErr
	}

	snap, err := rt.engine.GetStatus(inst.ID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if runErr != nil {
		logger.Error("workflow failed", zap.String("instance_id", inst.ID), zap.Error(runErr))
	}
	return runErr
}

// loadVariables 合并变量文件与 --var 参数，后者优先
func loadVariables(path string, pairs []string) (map[string]any, error) {
	vars := make(map[string]any)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read vars file: %w", err)
		}
		// JSON 是 YAML 的子集
		if err := yaml.Unmarshal(data, &vars); err != nil {
			return nil, fmt.Errorf("parse vars file %s: %w", path, err)
		}
	}
	parsed, err := parseVars(pairs)
	if err != nil {
		return nil, err
	}
	for k, v := range parsed {
		vars[k] = v
	}
	return vars, nil
}

// parseVars 解析 key=value 列表；value 可以为空或包含 '='
func parseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q: expected key=value", p)
		}
		vars[key] = value
	}
	return vars, nil
}

// cliLogConfig 让一次性命令的日志走 stderr，stdout 只输出结果
func cliLogConfig(lc config.LogConfig) config.LogConfig {
	lc.OutputPaths = []string{"stderr"}
	if lc.Level == "" || lc.Level == "info" || lc.Level == "debug" {
		lc.Level = "warn"
	}
	return lc
}

// =============================================================================
// 📚 templates 命令
// =============================================================================

func runTemplates(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("templates", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	show := fs.String("show", "", "Template ID to print")
	format := fs.String("format", "yaml", "Output format for --show: yaml or json")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cliLogConfig(cfg.Log))
	defer func() { _ = logger.Sync() }()

	// 仅列出模板时不需要 Provider 与 Sink
	engine := workflow.NewEngine(workflow.EngineConfig{}, nil, nil, logger)
	if err := loadTemplates(engine, cfg.Workflow, logger); err != nil {
		return err
	}

	if *show != "" {
		return showTemplate(engine, *show, *format, out)
	}
	return listTemplates(engine, out)
}

func listTemplates(engine *workflow.Engine, out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTEPS\tVARIABLES")
	for _, t := range engine.Templates() {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", t.ID, t.Name, len(t.Steps), strings.Join(t.Variables, ","))
	}
	return tw.Flush()
}

func showTemplate(engine *workflow.Engine, id, format string, out io.Writer) error {
	t, err := engine.Registry().Get(id)
	if err != nil {
		return err
	}
	f := workflow.FormatYAML
	switch format {
	case "yaml", "yml":
	case "json":
		f = workflow.FormatJSON
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
	data, err := workflow.MarshalTemplate(t, f)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}
