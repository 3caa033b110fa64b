package writer

import "time"

// WriterConfig configures batching behavior for a writer.
type WriterConfig struct {
	BatchSize     int           // Flush when the batch reaches this size
	FlushInterval time.Duration // Flush at least this often
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: 2 * time.Second,
	}
}

// WriterMetrics tracks writer activity.
type WriterMetrics struct {
	Inserts   int64 // Rows successfully inserted
	Conflicts int64 // Rows skipped by ON CONFLICT
	Errors    int64 // Failed batch flushes
	Flushes   int64 // Successful flushes
}
