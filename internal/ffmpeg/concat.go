package ffmpeg

import (
	"fmt"
	"os"
	"strings"
)

// WriteConcatList writes an ffmpeg concat-demuxer list file enumerating the
// segment outputs in ordinal order.
func WriteConcatList(path string, files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("concat list: no files")
	}

	var b strings.Builder
	for _, f := range files {
		// The concat demuxer quotes with single quotes; embedded quotes
		// use the '\'' escape.
		escaped := strings.ReplaceAll(f, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o640); err != nil {
		return fmt.Errorf("writing concat list: %w", err)
	}
	return nil
}
