package wizard

import "errors"

var (
	// ErrNoFiles is returned when an action needs at least one staged file.
	ErrNoFiles = errors.New("wizard: no files staged")
	// ErrNoFeatures is returned when an action needs at least one analysis.
	ErrNoFeatures = errors.New("wizard: no analysis feature selected")
	ErrInvalidTransition = errors.New("wizard: invalid transition")
	ErrWrongStep         = errors.New("wizard: action not available on this step")
	ErrProcessingRunning = errors.New("wizard: processing is running")
	// ErrFinished is returned once the wizard has handed off to the results page.
	ErrFinished = errors.New("wizard: already finished")
	ErrClosed   = errors.New("wizard: closed")
)

// IsValidation reports whether err is a user-correctable validation notice.
func IsValidation(err error) bool {
	return errors.Is(err, ErrNoFiles) || errors.Is(err, ErrNoFeatures)
}

// Notice returns the message shown to the user for a validation error.
func Notice(err error) string {
	switch {
	case errors.Is(err, ErrNoFiles):
		return "Please select at least one file!"
	case errors.Is(err, ErrNoFeatures):
		return "Please select at least one analysis feature!"
	}
	return ""
}
