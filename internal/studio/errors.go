package studio

import "errors"

var (
	ErrBusy             = errors.New("a generation is already running")
	ErrNoSource         = errors.New("no source image selected")
	ErrNoResult         = errors.New("no generated image yet")
	ErrInvalidIndex     = errors.New("history index out of range")
	ErrInvalidAction    = errors.New("invalid action")
	ErrNotExplorer      = errors.New("explorer mode is not active")
	ErrRestoring        = errors.New("session is still being restored")
	ErrNotFound         = errors.New("not found")
	ErrGenerationFailed = errors.New("generation failed")
	ErrDiscarded        = errors.New("result discarded after reset")
)
