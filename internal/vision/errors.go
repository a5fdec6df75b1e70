package vision

import (
	"errors"
	"fmt"
)

// ErrImageServiceError is returned for images that cannot be described at
// all, such as empty uploads.
var ErrImageServiceError = errors.New("image service error")

// ImageServiceUnavailableError indicates the vision model could not be
// reached.
type ImageServiceUnavailableError struct {
	Err error
}

func (e *ImageServiceUnavailableError) Error() string {
	return fmt.Sprintf("image service unavailable: %v", e.Err)
}

func (e *ImageServiceUnavailableError) Unwrap() error { return e.Err }

// ImageServiceError indicates the vision model answered without a usable
// description.
type ImageServiceError struct {
	Reason string
}

func (e *ImageServiceError) Error() string {
	return "image service error: " + e.Reason
}

func (e *ImageServiceError) Is(target error) bool { return target == ErrImageServiceError }
