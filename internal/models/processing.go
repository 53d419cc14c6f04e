package models

import "time"

// ProcessingOptions configures the retry loop.
type ProcessingOptions struct {
	IntervalMin  time.Duration
	IntervalMax  time.Duration
	BatchSize    int
	RetryEnabled bool
}

// DefaultProcessingOptions mirrors the loop defaults.
func DefaultProcessingOptions() ProcessingOptions {
	return ProcessingOptions{
		IntervalMin:  DefaultIntervalMinMS * time.Millisecond,
		IntervalMax:  DefaultIntervalMaxMS * time.Millisecond,
		BatchSize:    DefaultBatchSize,
		RetryEnabled: true,
	}
}

// ProcessingState is in-memory observability for the loop. It is never
// persisted and is rebuilt fresh on restart.
type ProcessingState struct {
	IsProcessing    bool          `json:"is_processing"`
	CurrentInterval time.Duration `json:"current_interval"`
	LastProcessedAt time.Time     `json:"last_processed_at"`
	ProcessedCount  int64         `json:"processed_count"`
	ErrorCount      int64         `json:"error_count"`
}

// Notification is the payload handed to notification sinks after a
// successful rebooking.
type Notification struct {
	TvAppID         string `json:"tvAppId"`
	BookingTime     string `json:"bookingTime"`
	DriverName      string `json:"driverName,omitempty"`
	ContainerNumber string `json:"containerNumber,omitempty"`
}
