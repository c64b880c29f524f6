package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/research-helper/pkg/research"
)

func TestPromptTopic(t *testing.T) {
	var out bytes.Buffer
	topic, err := promptTopic(strings.NewReader("  Go generics \n"), &out)
	require.NoError(t, err)
	assert.Equal(t, "Go generics", topic)
	assert.Equal(t, "Enter research topic: ", out.String())

	topic, err = promptTopic(strings.NewReader("no newline"), &out)
	require.NoError(t, err)
	assert.Equal(t, "no newline", topic)

	_, err = promptTopic(strings.NewReader("\n"), &out)
	assert.ErrorIs(t, err, research.ErrEmptyTopic)
}

func TestRootFlags(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"-t", "Go", "-d", "3", "--variant", "sections", "-p", "arxiv"}))

	f := cmd.Flags()
	assert.True(t, f.Changed("topic"))
	depth, err := f.GetInt("depth")
	require.NoError(t, err)
	assert.Equal(t, 3, depth)
	variant, err := f.GetString("variant")
	require.NoError(t, err)
	assert.Equal(t, "sections", variant)
	provider, err := f.GetString("provider")
	require.NoError(t, err)
	assert.Equal(t, "arxiv", provider)
	assert.False(t, f.Changed("breadth"))
}

func TestRunRejectsEmptyTopic(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(t.Context(), options{topic: "  "}, &stdout, &stderr)
	assert.ErrorIs(t, err, research.ErrEmptyTopic)
	assert.Empty(t, stdout.String())
}
