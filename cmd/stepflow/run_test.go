package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/stepflow/config"
	"github.com/BaSui01/stepflow/workflow"
)

// writeConfigFile 写入一个只加载模板目录、无 Provider 的配置文件
func writeConfigFile(t *testing.T, templateDir string) string {
	t.Helper()
	content := "llm:\n  providers: []\nworkflow:\n  builtins: false\n  template_dir: " + templateDir + "\n"
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseVars(t *testing.T) {
	vars, err := parseVars([]string{"text=hello", "empty=", "expr=a=b", " spaced =x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"text": "hello", "empty": "", "expr": "a=b", "spaced": "x"}, vars)

	for _, bad := range []string{"novalue", "=x", "  =x"} {
		_, err := parseVars([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestLoadVariables_FileThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vars.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"text": "from file", "mood": "calm"}`), 0o644))

	vars, err := loadVariables(path, []string{"text=from flag"})
	require.NoError(t, err)
	assert.Equal(t, "from flag", vars["text"])
	assert.Equal(t, "calm", vars["mood"])

	_, err = loadVariables(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestCLILogConfig(t *testing.T) {
	lc := cliLogConfig(config.LogConfig{Level: "info", Format: "json", OutputPaths: []string{"stdout"}})
	assert.Equal(t, []string{"stderr"}, lc.OutputPaths)
	assert.Equal(t, "warn", lc.Level)

	lc = cliLogConfig(config.LogConfig{Level: "error"})
	assert.Equal(t, "error", lc.Level)
}

func TestRunWorkflow_PrintsInstance(t *testing.T) {
	cfgPath := writeConfigFile(t, writeTemplateDir(t))

	var out bytes.Buffer
	err := runWorkflow([]string{"--config", cfgPath, "--template", "shout", "--var", "text=one two"}, &out)
	require.NoError(t, err)

	var snap workflow.InstanceSnapshot
	require.NoError(t, json.Unmarshal(out.Bytes(), &snap))
	assert.Equal(t, "shout", snap.TemplateID)
	assert.Equal(t, workflow.StatusCompleted, snap.Status)
	require.Contains(t, snap.Results, "count")
	assert.Equal(t, "2", snap.Results["count"].Output)
	assert.Len(t, snap.History, 3)
}

func TestRunWorkflow_Errors(t *testing.T) {
	cfgPath := writeConfigFile(t, writeTemplateDir(t))

	var out bytes.Buffer
	err := runWorkflow([]string{"--config", cfgPath}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--template")

	err = runWorkflow([]string{"--config", cfgPath, "--template", "nope"}, &out)
	require.Error(t, err)
	assert.Empty(t, out.String())
}

func TestRunTemplates_List(t *testing.T) {
	cfgPath := writeConfigFile(t, writeTemplateDir(t))

	var out bytes.Buffer
	require.NoError(t, runTemplates([]string{"--config", cfgPath}, &out))
	assert.Contains(t, out.String(), "ID")
	assert.Contains(t, out.String(), "shout")
	assert.Contains(t, out.String(), "text")
}

func TestRunTemplates_ShowJSON(t *testing.T) {
	cfgPath := writeConfigFile(t, writeTemplateDir(t))

	var out bytes.Buffer
	require.NoError(t, runTemplates([]string{"--config", cfgPath, "--show", "shout", "--format", "json"}, &out))

	tmpl, err := workflow.ParseTemplate(out.Bytes(), workflow.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "shout", tmpl.ID)
	require.Len(t, tmpl.Steps, 3)
	assert.Equal(t, workflow.KindNotify, tmpl.Steps[2].Kind)
}

func TestRunTemplates_ShowErrors(t *testing.T) {
	cfgPath := writeConfigFile(t, writeTemplateDir(t))

	var out bytes.Buffer
	assert.Error(t, runTemplates([]string{"--config", cfgPath, "--show", "missing"}, &out))
	assert.Error(t, runTemplates([]string{"--config", cfgPath, "--show", "shout", "--format", "toml"}, &out))
}
