package ingest

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/defispring/allocation-merkle-go/pkg/types"
)

// Source produces the raw per-round input for a refresh.
type Source interface {
	// Name identifies the source in logs.
	Name() string

	// Load returns every round found, in ascending round order.
	Load(ctx context.Context) ([]*types.RoundAmounts, error)
}

// LocalSource reads raw_<round>.zip files from a directory.
type LocalSource struct {
	dir    string
	logger *zap.Logger
}

func NewLocalSource(dir string, logger *zap.Logger) *LocalSource {
	return &LocalSource{dir: dir, logger: logger}
}

func (s *LocalSource) Name() string {
	return "local:" + s.dir
}

func (s *LocalSource) Load(ctx context.Context) ([]*types.RoundAmounts, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read raw input directory %s", s.dir)
	}

	set := newRoundSet()
	for _, entry := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() {
			continue
		}

		round, ok := RoundFromFileName(entry.Name())
		if !ok {
			s.logger.Sugar().Debugw("Ignoring file that is not a round input", "file", entry.Name())
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		entries, err := readArchiveFile(path)
		if errors.Is(err, ErrEmptyArchive) {
			s.logger.Sugar().Warnw("Skipping empty archive", "file", path, "round", round)
			continue
		}
		if err != nil {
			return nil, err
		}

		if err := set.add(round, path, entries); err != nil {
			return nil, err
		}
		s.logger.Sugar().Debugw("Loaded round input", "file", path, "round", round, "entries", len(entries))
	}

	return set.sorted(), nil
}

func readArchiveFile(path string) ([]types.RawAllocation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open archive %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat archive %s", path)
	}

	entries, err := ReadArchive(f, info.Size())
	if err != nil {
		if errors.Is(err, ErrEmptyArchive) {
			return nil, err
		}
		return nil, errors.Wrapf(err, "failed to read archive %s", path)
	}
	return entries, nil
}
