package llm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("STEPFLOW_TEST_KEY", " sk-env ")

	dir := t.TempDir()
	keyFile := filepath.Join(dir, "key")
	require.NoError(t, os.WriteFile(keyFile, []byte("sk-file\n"), 0o600))
	emptyFile := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(emptyFile, nil, 0o600))

	tests := []struct {
		name    string
		ref     string
		want    string
		wantErr bool
	}{
		{name: "empty", ref: "", want: ""},
		{name: "env", ref: "env:STEPFLOW_TEST_KEY", want: "sk-env"},
		{name: "missing env", ref: "env:STEPFLOW_TEST_MISSING", wantErr: true},
		{name: "file", ref: "file:" + keyFile, want: "sk-file"},
		{name: "empty file", ref: "file:" + emptyFile, wantErr: true},
		{name: "missing file", ref: "file:" + filepath.Join(dir, "nope"), wantErr: true},
		{name: "literal", ref: "sk-literal", want: "sk-literal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveAPIKey(tt.ref)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsKeyReference(t *testing.T) {
	assert.True(t, IsKeyReference("env:X"))
	assert.True(t, IsKeyReference("file:/tmp/x"))
	assert.False(t, IsKeyReference("sk-123"))
}
