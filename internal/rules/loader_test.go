package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRules = `
rules:
  - id: CONTENT_POLICY_NO_HATE_SPEECH
    version: 1
    description: Block profile text containing banned terms
    triggerActions: [profile.update, message.send]
    kind: DECLARATIVE
    check: banned_terms
    parameters:
      fields: [bio]
      terms: [slur]
    actionOnFail: BLOCK
    priority: 1
  - id: MATCHING_NO_SELF_MATCH
    triggerActions: [match.propose]
    kind: PROCEDURAL
    handler: matching.no_self_match
    actionOnFail: BLOCK
    priority: 5
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRules), 0o600))

	rs, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, rs, 2)

	hate := rs[0]
	assert.Equal(t, "CONTENT_POLICY_NO_HATE_SPEECH", hate.ID)
	assert.Equal(t, KindDeclarative, hate.Kind)
	assert.Equal(t, ActionBlock, hate.ActionOnFail)
	assert.Equal(t, []any{"slur"}, hate.Parameters["terms"])
	assert.True(t, hate.Triggers("message.send"))

	self := rs[1]
	assert.Equal(t, 0, self.Version)
	assert.Equal(t, "matching.no_self_match", self.Handler)
	assert.Nil(t, self.Parameters)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Parse([]byte("rules: [unterminated"))
	assert.Error(t, err)
}
