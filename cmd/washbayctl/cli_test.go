package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smallbiznis/washbay/internal/auth/session"
	"github.com/smallbiznis/washbay/internal/clock"
	"github.com/smallbiznis/washbay/internal/config"
	"github.com/smallbiznis/washbay/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCLI(t *testing.T, cfg config.Config, args ...string) (string, string, error) {
	t.Helper()

	cmd := newRootCmdWithOptions(&rootOptions{
		loadConfig: func() config.Config { return cfg },
	})
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func sqliteConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Environment:    config.EnvironmentDevelopment,
		BaseDomain:     "washbay.test",
		AuthJWTSecret:  "cli-secret",
		AuthSessionTTL: time.Hour,
		SnowflakeNode:  7,
		DBType:         "sqlite",
		DBName:         filepath.Join(t.TempDir(), "cli.db"),
		Reconcile: config.ReconcileConfig{
			Enabled:   true,
			Schedule:  "0 */5 * * * *",
			BatchSize: 10,
		},
	}
}

func TestTokenIssue(t *testing.T) {
	cfg := sqliteConfig(t)

	stdout, stderr, err := executeCLI(t, cfg, "token", "issue", "--user", "admin-1", "--role", "SUPER_ADMIN")
	require.NoError(t, err)
	assert.Contains(t, stderr, "expires ")

	tokens := session.NewTokensWithSecret(cfg.AuthJWTSecret, cfg.AuthSessionTTL, clock.NewSystemClock())
	identity, _, err := tokens.Verify(strings.TrimSpace(stdout))
	require.NoError(t, err)
	assert.Equal(t, "admin-1", identity.UserID)
	assert.True(t, identity.IsSuperAdmin())
}

func TestTokenIssueRefusedInProduction(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Environment = config.EnvironmentProduction

	stdout, _, err := executeCLI(t, cfg, "token", "issue", "--user", "admin-1")
	require.ErrorIs(t, err, errTokenInProduction)
	assert.Empty(t, stdout)
}

func TestTokenIssueRequiresUser(t *testing.T) {
	_, _, err := executeCLI(t, sqliteConfig(t), "token", "issue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"user"`)
}

func TestMigrateThenCreateTenant(t *testing.T) {
	cfg := sqliteConfig(t)

	stdout, _, err := executeCLI(t, cfg, "migrate")
	require.NoError(t, err)
	assert.Contains(t, stdout, "schema up to date (sqlite)")

	stdout, _, err = executeCLI(t, cfg, "tenant", "create", "--name", "Sparkle Wash", "--owner", "owner-1", "--email", "owner@sparkle.test")
	require.NoError(t, err)
	fields := strings.Fields(stdout)
	require.Len(t, fields, 2)
	assert.Equal(t, "sparkle-wash", fields[1])

	stdout, _, err = executeCLI(t, cfg, "tenant", "status", "sparkle-wash")
	require.NoError(t, err)
	var status map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &status))
	assert.Equal(t, true, status["isBlocked"])
	assert.Equal(t, "no_plan", status["reason"])
}

func TestReconcileRunsNamedJob(t *testing.T) {
	cfg := sqliteConfig(t)
	_, _, err := executeCLI(t, cfg, "migrate")
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, cfg, "reconcile", reconcile.JobInvoiceReminders)
	require.NoError(t, err)

	var results []reconcile.JobResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &results))
	require.Len(t, results, 1)
	assert.Equal(t, reconcile.JobInvoiceReminders, results[0].Job)
	assert.Zero(t, results[0].Processed)
}

func TestReconcileUnknownJob(t *testing.T) {
	cfg := sqliteConfig(t)
	_, _, err := executeCLI(t, cfg, "migrate")
	require.NoError(t, err)

	_, _, err = executeCLI(t, cfg, "reconcile", "rebuild-ledger")
	require.ErrorIs(t, err, reconcile.ErrUnknownJob)
}

func TestLogLevelFromEnvironmentAndFlag(t *testing.T) {
	cfg := sqliteConfig(t)
	t.Setenv("WASHBAY_LOG_LEVEL", "debug")

	run := func(args ...string) *rootOptions {
		opts := &rootOptions{loadConfig: func() config.Config { return cfg }}
		cmd := newRootCmdWithOptions(opts)
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(args)
		require.NoError(t, cmd.Execute())
		return opts
	}

	assert.Equal(t, "debug", run("token", "issue", "--user", "u-1").logLevel())
	assert.Equal(t, "error", run("--log-level", "error", "token", "issue", "--user", "u-1").logLevel())
}
