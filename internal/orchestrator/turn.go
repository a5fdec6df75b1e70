package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/abhisek/mathchat/internal/vision"
)

// ErrInvalidInput is returned for malformed turns. Nothing is changed.
var ErrInvalidInput = errors.New("invalid input")

// ErrGeneration wraps failures of the answer stream.
var ErrGeneration = errors.New("answer generation failed")

// Turn is one inbound student message. Exactly one of Message or Image
// (with ExtractedText) is set.
type Turn struct {
	SessionID     string
	UserID        string
	Message       string
	Image         *vision.Image
	ExtractedText string
}

// Validate checks the message/image exclusivity.
func (t Turn) Validate() error {
	hasText := strings.TrimSpace(t.Message) != ""
	hasImage := t.Image != nil
	switch {
	case t.SessionID == "":
		return fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	case hasText && hasImage:
		return fmt.Errorf("%w: send either a message or an image, not both", ErrInvalidInput)
	case !hasText && !hasImage:
		return fmt.Errorf("%w: a message or an image is required", ErrInvalidInput)
	case hasImage && strings.TrimSpace(t.ExtractedText) == "":
		return fmt.Errorf("%w: extracted_text is required with an image", ErrInvalidInput)
	}
	return nil
}

// imageContent is the user turn recorded for an image upload.
type imageContent struct {
	Image            string `json:"image"`
	ExtractedText    string `json:"extracted_text"`
	ImageDescription string `json:"image_description"`
}

func encodeImageTurn(filename, extracted, description string) string {
	b, _ := json.Marshal(imageContent{
		Image:            filename,
		ExtractedText:    extracted,
		ImageDescription: description,
	})
	return string(b)
}

// ChunkWriter receives answer text as it is generated.
type ChunkWriter interface {
	WriteChunk(chunk string) error
}

// ChunkWriterFunc adapts a function to ChunkWriter.
type ChunkWriterFunc func(chunk string) error

func (f ChunkWriterFunc) WriteChunk(chunk string) error { return f(chunk) }
