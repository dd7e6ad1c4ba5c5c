package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func envWith(dsn string) func(string) string {
	return func(key string) string {
		if key == "STORE_POSTGRES_DSN" {
			return dsn
		}
		return ""
	}
}

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"-direction", " DOWN ", "-steps=2", "-timeout=5s"}, envWith("postgres://env"))
	require.NoError(t, err)
	require.Equal(t, options{direction: "down", steps: 2, dsn: "postgres://env", timeout: 5 * time.Second}, opts)

	opts, err = parseOptions([]string{"-dsn", "postgres://flag"}, envWith("postgres://env"))
	require.NoError(t, err)
	require.Equal(t, "postgres://flag", opts.dsn, "flag wins over env")
	require.Equal(t, "up", opts.direction)
}

func TestParseOptions_Invalid(t *testing.T) {
	tests := map[string]struct {
		args    []string
		env     string
		wantErr string
	}{
		"no dsn":          {args: nil, wantErr: "postgres DSN is required"},
		"negative steps":  {args: []string{"-steps=-1"}, env: "postgres://x", wantErr: "steps must be >= 0"},
		"zero timeout":    {args: []string{"-timeout=0s"}, env: "postgres://x", wantErr: "timeout must be > 0"},
		"unknown flag":    {args: []string{"-force"}, env: "postgres://x", wantErr: "flag provided but not defined"},
		"blank dsn flags": {args: []string{"-dsn", "  "}, wantErr: "postgres DSN is required"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseOptions(tt.args, envWith(tt.env))
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

type fakeMigrator struct {
	calls     []string
	steps     int
	upErr     error
	statusErr error
}

func (f *fakeMigrator) MigrateUp(_ context.Context, steps int) error {
	f.calls, f.steps = append(f.calls, "up"), steps
	return f.upErr
}

func (f *fakeMigrator) MigrateDown(_ context.Context, steps int) error {
	f.calls, f.steps = append(f.calls, "down"), steps
	return nil
}

func (f *fakeMigrator) MigrationStatus(context.Context) (int64, int, error) {
	f.calls = append(f.calls, "status")
	return 3, 3, f.statusErr
}

func TestMigrate_Directions(t *testing.T) {
	tests := []struct {
		direction string
		steps     int
		wantCalls []string
		wantSteps int
	}{
		{direction: "up", wantCalls: []string{"up", "status"}},
		{direction: "up", steps: 2, wantCalls: []string{"up", "status"}, wantSteps: 2},
		{direction: "down", wantCalls: []string{"down", "status"}, wantSteps: 1},
		{direction: "status", wantCalls: []string{"status"}},
	}

	for _, tt := range tests {
		m := &fakeMigrator{}
		ver, applied, err := migrate(context.Background(), m, tt.direction, tt.steps)
		require.NoError(t, err, tt.direction)
		require.Equal(t, int64(3), ver)
		require.Equal(t, 3, applied)
		require.Equal(t, tt.wantCalls, m.calls, tt.direction)
		require.Equal(t, tt.wantSteps, m.steps, tt.direction)
	}
}

func TestMigrate_Errors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("lock timeout")

	_, _, err := migrate(ctx, &fakeMigrator{}, "sideways", 0)
	require.EqualError(t, err, `unsupported direction "sideways", use up, down or status`)

	_, _, err = migrate(ctx, &fakeMigrator{upErr: boom}, "up", 0)
	require.ErrorIs(t, err, boom)

	_, _, err = migrate(ctx, &fakeMigrator{statusErr: boom}, "status", 0)
	require.ErrorContains(t, err, "read migration status: lock timeout")
}
