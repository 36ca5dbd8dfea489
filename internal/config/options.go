package config

// RunOptions controls a single invocation
type RunOptions struct {
	UseChangeLog   bool // read and write per-directory change logs
	RebuildLog     bool // ignore stored digests, process everything, rewrite logs
	RebuildLogOnly bool // never compress, only record current digests
	Backup         bool // keep a copy of the original next to each processed file
	DryRun         bool // report decisions without touching the filesystem
	NoRegress      bool // keep the original when the compressed output is not smaller
}

// Normalize resolves conflicting options. A log-only rebuild implies change
// logs and wins over a full rebuild and backups; disabling change logs turns
// off both rebuild modes.
func (o RunOptions) Normalize() RunOptions {
	if o.RebuildLogOnly {
		o.UseChangeLog = true
		o.RebuildLog = false
		o.Backup = false
	}
	if !o.UseChangeLog {
		o.RebuildLog = false
		o.RebuildLogOnly = false
	}
	return o
}

// Mode returns a short label for logging
func (o RunOptions) Mode() string {
	switch {
	case o.RebuildLogOnly:
		return "rebuild-log-only"
	case !o.UseChangeLog:
		return "no-log"
	case o.RebuildLog:
		return "rebuild-log"
	default:
		return "incremental"
	}
}
