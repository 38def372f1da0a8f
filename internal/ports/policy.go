package ports

import "time"

type Policy struct {
	MaxQueueLen  int           `yaml:"max_queue_len"`
	MaxBatchSize int           `yaml:"max_batch_size"`
	IdleSleep    time.Duration `yaml:"idle_sleep"`

	OnQueueFull string `yaml:"on_queue_full"` // "block", "drop", "reject"

	// A batch the sink keeps failing is rejected after MaxWriteAttempts
	// writes. The wait between attempts starts at RetryBackoff and doubles.
	MaxWriteAttempts int           `yaml:"max_write_attempts"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
}
