package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// experimentFeed serves a precomputed skeleton from a JSON file. Files ending
// in .zst are zstd-compressed. The file is read on every request so it can
// be replaced without a restart.
type experimentFeed struct {
	path string
}

func (f *experimentFeed) Generate(ctx context.Context, _ Request) (*Skeleton, error) {
	if f.path == "" {
		return &Skeleton{Feed: []SkeletonItem{}}, nil
	}

	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open experiment feed: %w", err)
	}
	defer file.Close()

	var r io.Reader = file
	if strings.HasSuffix(f.path, ".zst") {
		dec, err := zstd.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	var s Skeleton
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode experiment feed: %w", err)
	}
	return &s, nil
}
