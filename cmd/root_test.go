package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandRegistration(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"migrate", "seed", "ingest", "compare", "choropleth", "areaload", "status", "serve"} {
		assert.True(t, names[want], "command %s not registered", want)
	}
}

func TestCompareSubcommands(t *testing.T) {
	sub := map[string]bool{}
	for _, c := range compareCmd.Commands() {
		sub[c.Name()] = true
	}
	assert.True(t, sub["areas"])
	assert.True(t, sub["years"])
	assert.True(t, sub["sources"])
}

func TestIngestRequiresArgs(t *testing.T) {
	require.Error(t, ingestCmd.Args(ingestCmd, nil))
	require.NoError(t, ingestCmd.Args(ingestCmd, []string{"feed.json"}))
}
