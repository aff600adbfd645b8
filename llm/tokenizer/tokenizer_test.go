package tokenizer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingTokenizer struct{}

func (failingTokenizer) CountTokens(string) (int, error) { return 0, errors.New("boom") }
func (failingTokenizer) MaxTokens() int                  { return 1 }
func (failingTokenizer) Name() string                    { return "failing" }

type fixedTokenizer struct{ n int }

func (f fixedTokenizer) CountTokens(string) (int, error) { return f.n, nil }
func (f fixedTokenizer) MaxTokens() int                  { return 100 }
func (f fixedTokenizer) Name() string                    { return "fixed" }

func TestEstimator_CountTokens(t *testing.T) {
	e := NewEstimatorTokenizer("any", 0)
	assert.Equal(t, 4096, e.MaxTokens())

	n, err := e.CountTokens("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = e.CountTokens("abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = e.CountTokens("a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = e.CountTokens("你好世界")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestGetTokenizer_LongestPrefix(t *testing.T) {
	RegisterTokenizer("test-model", fixedTokenizer{n: 1})
	RegisterTokenizer("test-model-large", fixedTokenizer{n: 2})

	tk, err := GetTokenizer("test-model-large-v2")
	require.NoError(t, err)
	n, _ := tk.CountTokens("x")
	assert.Equal(t, 2, n)

	_, err = GetTokenizer("unregistered-zzz")
	assert.Error(t, err)
	assert.Equal(t, "estimator", GetTokenizerOrEstimator("unregistered-zzz").Name())
}

func TestEstimate_FallsBackOnError(t *testing.T) {
	RegisterTokenizer("failing-model", failingTokenizer{})

	assert.Equal(t, 2, Estimate("failing-model", "abcdefgh"))
	assert.Equal(t, 3, Estimate("unknown-model-xyz", "abcdefgh", "", "abcd"))
}

func TestNewTiktokenTokenizer_EncodingSelection(t *testing.T) {
	assert.Equal(t, "tiktoken[o200k_base]", NewTiktokenTokenizer("gpt-4o-mini-2024").Name())
	assert.Equal(t, 8192, NewTiktokenTokenizer("gpt-4").MaxTokens())
	assert.Equal(t, "tiktoken[cl100k_base]", NewTiktokenTokenizer("something-else").Name())
}
