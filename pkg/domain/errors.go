package domain

import "errors"

var (
	ErrMissingInput         = errors.New("API key and files required")
	ErrGenerationInProgress = errors.New("generation already in progress")
	ErrReadFailed           = errors.New("failed to read image")
	ErrServiceFailed        = errors.New("request failed")
	ErrServiceBusy          = errors.New("service temporarily unavailable due to high demand")
	ErrGenerationTimeout    = errors.New("generation timed out")
	ErrGenerationCanceled   = errors.New("generation canceled")
	ErrUnsupportedMedia     = errors.New("unsupported image format")
	ErrImageTooLarge        = errors.New("image is too large")
	ErrEmptyImage           = errors.New("image is empty")
	ErrUnknownSlot          = errors.New("unknown image slot")
)
