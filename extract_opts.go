package p4k

// ExtractOption configures Extract.
type ExtractOption func(*extractConfig)

type extractConfig struct {
	filter        Filter
	prefix        string
	workers       int
	failFast      bool
	progress      ProgressFunc
	overwrite     bool
	preserveTimes bool
	directWrites  bool
}

// ExtractWithFilter extracts only paths matched by f.
func ExtractWithFilter(f Filter) ExtractOption {
	return func(c *extractConfig) {
		c.filter = f
	}
}

// ExtractWithPrefix extracts only paths at or below prefix.
func ExtractWithPrefix(prefix string) ExtractOption {
	return func(c *extractConfig) {
		c.prefix = prefix
	}
}

// ExtractSequential processes entries one at a time.
func ExtractSequential() ExtractOption {
	return func(c *extractConfig) {
		c.workers = 1
	}
}

// ExtractParallel processes entries with one worker per CPU.
// This is the default.
func ExtractParallel() ExtractOption {
	return func(c *extractConfig) {
		c.workers = 0
	}
}

// ExtractWithWorkers sets the number of concurrent workers.
// Zero uses GOMAXPROCS; one or fewer processes entries sequentially.
func ExtractWithWorkers(n int) ExtractOption {
	return func(c *extractConfig) {
		c.workers = n
	}
}

// ExtractWithProgress sets a callback for progress updates.
func ExtractWithProgress(fn ProgressFunc) ExtractOption {
	return func(c *extractConfig) {
		c.progress = fn
	}
}

// ExtractWithFailFast stops at the first failed entry instead of
// collecting failures in the report.
func ExtractWithFailFast(enabled bool) ExtractOption {
	return func(c *extractConfig) {
		c.failFast = enabled
	}
}

// ExtractWithOverwrite replaces existing files. By default they are skipped.
func ExtractWithOverwrite(enabled bool) ExtractOption {
	return func(c *extractConfig) {
		c.overwrite = enabled
	}
}

// ExtractWithPreserveTimes sets each file's modification time from its entry.
func ExtractWithPreserveTimes(enabled bool) ExtractOption {
	return func(c *extractConfig) {
		c.preserveTimes = enabled
	}
}

// ExtractWithDirectWrites writes straight to the final path instead of a
// temporary file renamed on completion. A failed entry may leave a partial
// file behind.
func ExtractWithDirectWrites(enabled bool) ExtractOption {
	return func(c *extractConfig) {
		c.directWrites = enabled
	}
}
