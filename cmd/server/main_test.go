package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DoyleJ11/chits-backend/internal/archive"
	"github.com/DoyleJ11/chits-backend/internal/config"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type closeFailStore struct{ err error }

func (closeFailStore) SaveRound(context.Context, *archive.RoundRecord) error   { return nil }
func (closeFailStore) SaveSeries(context.Context, *archive.SeriesRecord) error { return nil }
func (s closeFailStore) Close() error                                         { return s.err }

func TestRun_ReportsArchiveCloseFailure(t *testing.T) {
	closeErr := errors.New("close failed")
	prev := openArchive
	openArchive = func(string) (archive.Store, error) { return closeFailStore{err: closeErr}, nil }
	t.Cleanup(func() { openArchive = prev })

	cfg, err := config.Load([]string{"--addr=127.0.0.1:0", "--database-url=postgres://unused"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, zap.NewNop()) }()
	select {
	case err := <-done:
		require.ErrorIs(t, err, closeErr)
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return after cancellation")
	}
}

func TestRun_ArchiveOpenFailure(t *testing.T) {
	openErr := errors.New("no database")
	prev := openArchive
	openArchive = func(string) (archive.Store, error) { return nil, openErr }
	t.Cleanup(func() { openArchive = prev })

	cfg, err := config.Load([]string{"--database-url=postgres://unused"})
	require.NoError(t, err)
	require.ErrorIs(t, run(context.Background(), cfg, zap.NewNop()), openErr)
}
