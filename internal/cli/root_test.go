package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "contactsync", cmd.Use)

	for _, name := range []string{"import", "get", "list"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlagDefaults(t *testing.T) {
	cmd := NewRootCommand()

	tests := map[string]string{
		"backend": BackendMemory,
		"region":  "US",
		"format":  "text",
		"env":     "production",
	}
	for name, want := range tests {
		f := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, want, f.DefValue, name)
	}
}

func TestFlagsFallBackToEnvironment(t *testing.T) {
	t.Setenv("CONTACTSYNC_BACKEND", BackendSQLite)
	t.Setenv("CONTACTSYNC_WORKERS", "9")
	t.Setenv("CONTACTSYNC_REGION", "")

	cmd := NewRootCommand()
	assert.Equal(t, BackendSQLite, cmd.PersistentFlags().Lookup("backend").DefValue)
	assert.Equal(t, "US", cmd.PersistentFlags().Lookup("region").DefValue)

	imp, _, err := cmd.Find([]string{"import"})
	require.NoError(t, err)
	assert.Equal(t, "9", imp.Flags().Lookup("workers").DefValue)
}

func TestInvalidGlobalFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"backend", []string{"list", "--backend", "mongo"}, `invalid backend "mongo"`},
		{"format", []string{"list", "--format", "yaml"}, `invalid format "yaml"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewRootCommand()
			cmd.SetArgs(tt.args)
			cmd.SetOut(&bytes.Buffer{})
			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPostgresRequiresURL(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"list", "--backend", "postgres", "--postgres-url", ""})
	cmd.SetOut(&bytes.Buffer{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--postgres-url is required")
}
