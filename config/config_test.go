package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ruteri/contract-registry/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
owner: "0x00000000000000000000000000000000000000aa"
policy: permissive
listen_addr: 0.0.0.0:8080
state_file: /var/lib/registry/state.json
storage:
  - file:///var/lib/registry
  - s3://artifacts/contracts?region=eu-west-1
identity:
  oracle_url: http://members:8080
  require_for_submit: true
log:
  json: true
  service: contract-registry
audit_capacity: 256
max_clock_skew: 2m
`

func TestParse(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	owner, err := cfg.OwnerPrincipal()
	require.NoError(t, err)
	assert.Equal(t, interfaces.Principal{19: 0xaa}, owner)
	assert.Equal(t, "permissive", cfg.Policy)
	assert.Len(t, cfg.Storage, 2)
	assert.True(t, cfg.Identity.RequireForSubmit)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, 256, cfg.AuditCapacity)
	assert.Equal(t, 2*time.Minute, cfg.MaxClockSkew)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, cfg.Owner)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown key", "ownr: 0x00"},
		{"bad owner", "owner: nobody"},
		{"bad policy", "policy: lenient"},
		{"bad storage", "storage: [github://owner/repo]"},
		{"identity without oracle", "identity:\n  require_for_submit: true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/registry/state.json", cfg.StateFile)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
