package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadQuestions(t *testing.T) {
	got, err := readQuestions([]string{"Who leads in assists?", "Top scorer?"}, strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Who leads in assists?", "Top scorer?"}, got)

	got, err = readQuestions([]string{"-"}, strings.NewReader("Who leads in assists?\n\n  Top scorer?  \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Who leads in assists?", "Top scorer?"}, got)

	_, err = readQuestions([]string{"-"}, strings.NewReader("\n \n"))
	assert.Error(t, err)
}
