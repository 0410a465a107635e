package domain

import (
	"context"
	"time"
)

// NotificationService defines the interface for notification services
type NotificationService interface {
	// SendSuccess sends a success notification with the run summary
	SendSuccess(ctx context.Context, summary RunSummary) error

	// SendError sends an error notification with error details
	SendError(ctx context.Context, err error) error
}

// RunSummary holds what a finished scrape produced
type RunSummary struct {
	Site     string
	Mode     Mode
	Query    string
	Records  int
	Attempts int
	Duration time.Duration
}
