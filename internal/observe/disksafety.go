package observe

import (
	"fmt"
	"syscall"

	"github.com/atasvc/sonata/internal/obserr"
)

// checkDiskSafety computes the archive directory's percent-full and compares
// it against the configured thresholds. Runs before any output is written.
func checkDiskSafety(root string, errorPct, warningPct float64) (percentFull float64, err error) {
	var st syscall.Statfs_t
	if statErr := syscall.Statfs(root, &st); statErr != nil {
		return 0, obserr.Wrap(obserr.FileIOError, "statfs archive root "+root, statErr)
	}
	total := float64(st.Blocks) * float64(st.Bsize)
	free := float64(st.Bavail) * float64(st.Bsize)
	if total <= 0 {
		return 0, obserr.New(obserr.FileIOError, "archive root "+root+" reports zero capacity")
	}
	used := total - free
	percentFull = (used / total) * 100

	if percentFull >= errorPct {
		return percentFull, obserr.New(obserr.FileIOError, fmt.Sprintf("archive disk %.1f%% full, error threshold %.1f%%", percentFull, errorPct))
	}
	return percentFull, nil
}
