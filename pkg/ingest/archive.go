package ingest

import (
	"encoding/json"
	"io"
	"regexp"
	"sort"
	"strconv"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"

	"github.com/defispring/allocation-merkle-go/pkg/types"
)

var (
	ErrEmptyArchive   = errors.New("archive contains no files")
	ErrDuplicateRound = errors.New("more than one input file for round")
)

// rawFileName matches round input files such as raw_3.zip or RAW_12.ZIP.
var rawFileName = regexp.MustCompile(`(?i)^raw_(\d+)\.zip$`)

// RoundFromFileName extracts the round number from a raw input file name.
// Names that do not match, round 0, and rounds above 255 are rejected.
func RoundFromFileName(name string) (uint8, bool) {
	m := rawFileName.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseUint(m[1], 10, 8)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint8(n), true
}

// ReadArchive decodes the first file of a zip archive as a JSON array of
// raw allocations. Any further files in the archive are ignored.
func ReadArchive(r io.ReaderAt, size int64) ([]types.RawAllocation, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open zip archive")
	}
	if len(zr.File) == 0 {
		return nil, ErrEmptyArchive
	}

	first := zr.File[0]
	rc, err := first.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open archive entry %s", first.Name)
	}
	defer rc.Close()

	var entries []types.RawAllocation
	if err := json.NewDecoder(rc).Decode(&entries); err != nil {
		return nil, errors.Wrapf(err, "failed to decode allocations from archive entry %s", first.Name)
	}
	if entries == nil {
		entries = []types.RawAllocation{}
	}
	return entries, nil
}

// roundSet accumulates rounds read by a source and rejects duplicates.
type roundSet struct {
	rounds  map[uint8]*types.RoundAmounts
	origins map[uint8]string
}

func newRoundSet() *roundSet {
	return &roundSet{
		rounds:  make(map[uint8]*types.RoundAmounts),
		origins: make(map[uint8]string),
	}
}

func (s *roundSet) add(round uint8, origin string, entries []types.RawAllocation) error {
	if prev, ok := s.origins[round]; ok {
		return errors.Wrapf(ErrDuplicateRound, "round %d in %s and %s", round, prev, origin)
	}
	s.origins[round] = origin
	s.rounds[round] = &types.RoundAmounts{Round: round, Allocations: entries}
	return nil
}

// sorted returns the rounds in ascending order.
func (s *roundSet) sorted() []*types.RoundAmounts {
	out := make([]*types.RoundAmounts, 0, len(s.rounds))
	for _, r := range s.rounds {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Round < out[j].Round
	})
	return out
}
