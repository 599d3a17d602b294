package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinHandlers(t *testing.T) {
	ctx := context.Background()
	ec := EvalContext{ActorID: "user-1", AffectedObjectID: "profile-1"}

	tests := []struct {
		name    string
		handler HandlerFunc
		ec      EvalContext
		payload map[string]any
		pass    bool
	}{
		{"self match by actor", noSelfMatch, ec, map[string]any{"candidateId": "user-1"}, false},
		{"self match by object", noSelfMatch, ec, map[string]any{"candidateId": "profile-1"}, false},
		{"distinct candidate", noSelfMatch, ec, map[string]any{"candidateId": "user-2"}, true},
		{"missing candidate", noSelfMatch, ec, nil, false},
		{"consent granted", consentPresent, ec, map[string]any{"consent": map[string]any{"dataProcessing": true}}, true},
		{"consent withheld", consentPresent, ec, map[string]any{"consent": map[string]any{"dataProcessing": false}}, false},
		{"consent custom key", consentPresent, EvalContext{Parameters: map[string]any{"key": "optIn"}}, map[string]any{"optIn": true}, true},
		{"email in bio", noContactDetails, ec, map[string]any{"bio": "write to ada@example.org"}, false},
		{"clean bio", noContactDetails, ec, map[string]any{"bio": "I like 3 cats"}, true},
		{"restricted fields", noContactDetails, EvalContext{Parameters: map[string]any{"fields": []any{"bio"}}}, map[string]any{"bio": "ok", "notes": "ada@example.org"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, err := tc.handler(ctx, tc.ec, NewDataView(tc.payload))
			require.NoError(t, err)
			assert.Equal(t, tc.pass, v.Pass, v.Message)
		})
	}
}
