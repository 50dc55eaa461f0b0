package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWithMultiStatement(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"clickhouse://localhost:9000/default", "clickhouse://localhost:9000/default?x-multi-statement=true"},
		{"clickhouse://localhost:9000/default?debug=1", "clickhouse://localhost:9000/default?debug=1&x-multi-statement=true"},
		{"clickhouse://h/db?x-multi-statement=false", "clickhouse://h/db?x-multi-statement=false"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, withMultiStatement(tt.in))
	}
}

func TestRunMigrationsRejectsBadDir(t *testing.T) {
	ctx := context.Background()

	err := runMigrations(ctx, config{MigrationsDir: filepath.Join(t.TempDir(), "missing")}, zap.NewNop())
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.sql")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	err = runMigrations(ctx, config{MigrationsDir: file}, zap.NewNop())
	require.ErrorContains(t, err, "not a directory")

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(t, runMigrations(canceled, config{}, zap.NewNop()), context.Canceled)
}
