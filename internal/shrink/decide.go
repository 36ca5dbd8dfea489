package shrink

import (
	"github.com/spf13/afero"

	"github.com/schaermu/imgshrink/internal/changelog"
	"github.com/schaermu/imgshrink/internal/config"
	"github.com/schaermu/imgshrink/internal/digest"
)

// Decide chooses what to do with the file name in path's directory. A
// log-only rebuild wins over every other mode, disabled logging and full
// rebuilds always process, and otherwise the current digest is compared
// with the one recorded in log
func Decide(fs afero.Fs, path, name string, log *changelog.Log, opts config.RunOptions) (Decision, error) {
	switch {
	case opts.RebuildLogOnly:
		sum, err := digest.File(fs, path)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Action: ActionLogOnly, Digest: sum}, nil
	case !opts.UseChangeLog, opts.RebuildLog:
		return Decision{Action: ActionProcess}, nil
	}

	sum, err := digest.File(fs, path)
	if err != nil {
		return Decision{}, err
	}

	if stored, ok := log.Lookup(name); ok && stored == sum {
		return Decision{Action: ActionSkip, Digest: sum}, nil
	}
	return Decision{Action: ActionProcess, Digest: sum}, nil
}
