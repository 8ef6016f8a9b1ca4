package scope_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forattini-dev/vaulter-sub005/pkg/scope"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "shared", input: "shared", want: "shared"},
		{name: "explicit service", input: "service:billing", want: "service:billing"},
		{name: "bare name shorthand", input: "billing", want: "service:billing"},
		{name: "surrounding whitespace", input: "  service:api  ", want: "service:api"},
		{name: "empty", input: "", wantErr: true},
		{name: "only whitespace", input: "   ", wantErr: true},
		{name: "double colon", input: "service:a:b", wantErr: true},
		{name: "unknown prefix", input: "env:prod", wantErr: true},
		{name: "reserved service name", input: "service:shared", wantErr: true},
		{name: "empty service name", input: "service:", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sc, err := scope.Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, sc.String())
		})
	}
}

func TestParseStringRoundTrip(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"shared", "service:api", "service:billing-v2"} {
		sc, err := scope.Parse(input)
		require.NoError(t, err)

		again, err := scope.Parse(sc.String())
		require.NoError(t, err)
		assert.Equal(t, sc, again)
	}
}

func TestZeroValueIsShared(t *testing.T) {
	t.Parallel()

	var sc scope.Scope
	assert.True(t, sc.IsShared())
	assert.False(t, sc.IsService())
	assert.Equal(t, scope.Shared, sc)
	assert.Equal(t, "shared", sc.String())
	assert.Empty(t, sc.ServiceName())
}

func TestForService(t *testing.T) {
	t.Parallel()

	sc, err := scope.ForService("api")
	require.NoError(t, err)
	assert.True(t, sc.IsService())
	assert.Equal(t, "api", sc.ServiceName())

	_, err = scope.ForService("")
	assert.Error(t, err)

	_, err = scope.ForService("shared")
	assert.Error(t, err)

	_, err = scope.ForService("a:b")
	assert.Error(t, err)
}

func TestScopeJSON(t *testing.T) {
	t.Parallel()

	sc, err := scope.ForService("worker")
	require.NoError(t, err)

	data, err := json.Marshal(sc)
	require.NoError(t, err)
	assert.Equal(t, `"service:worker"`, string(data))

	var decoded scope.Scope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, sc, decoded)

	var bad scope.Scope
	assert.Error(t, json.Unmarshal([]byte(`"service:a:b"`), &bad))
}

func TestMergeForService(t *testing.T) {
	t.Parallel()

	shared := map[string]string{"LOG_LEVEL": "info", "REGION": "us-east-1"}
	overrides := map[string]string{"LOG_LEVEL": "debug", "PORT": "8080"}

	merged := scope.MergeForService(shared, overrides, true)
	assert.Equal(t, map[string]string{
		"LOG_LEVEL": "debug",
		"REGION":    "us-east-1",
		"PORT":      "8080",
	}, merged)

	noInherit := scope.MergeForService(shared, overrides, false)
	assert.Equal(t, overrides, noInherit)

	// Inputs must never be mutated.
	assert.Equal(t, "info", shared["LOG_LEVEL"])

	// The no-inherit result is a copy, not an alias.
	noInherit["PORT"] = "9090"
	assert.Equal(t, "8080", overrides["PORT"])
}

func TestSortedKeys(t *testing.T) {
	t.Parallel()

	keys := scope.SortedKeys(map[string]string{"b": "2", "a": "1", "c": "3"})
	assert.Equal(t, []string{"a", "b", "c"}, keys)
	assert.Empty(t, scope.SortedKeys(nil))
}
