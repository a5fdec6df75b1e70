package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/abhisek/mathchat/internal/orchestrator"
	"github.com/abhisek/mathchat/internal/vision"
)

// HeaderUserID carries the authenticated user, set by the gateway in front
// of the service. It is only logged.
const HeaderUserID = "X-User-ID"

type errorResponse struct {
	Error string `json:"error"`
}

// MathChat runs one turn and streams the answer as plain text.
// POST /api/math_chat
func (s *Server) MathChat(c echo.Context) error {
	turn, err := readTurn(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	res := c.Response()
	started := false
	w := orchestrator.ChunkWriterFunc(func(chunk string) error {
		if !started {
			res.Header().Set(echo.HeaderContentType, echo.MIMETextPlainCharsetUTF8)
			res.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := io.WriteString(res, chunk); err != nil {
			return err
		}
		res.Flush()
		return nil
	})

	err = s.chat.HandleTurn(c.Request().Context(), turn, w)
	switch {
	case err == nil:
		if !started {
			// An empty answer still gets a text response.
			res.Header().Set(echo.HeaderContentType, echo.MIMETextPlainCharsetUTF8)
			res.WriteHeader(http.StatusOK)
		}
		return nil
	case errors.Is(err, orchestrator.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case started:
		// Headers are gone; the client sees a truncated stream.
		s.logger.Warn("answer stream aborted",
			zap.String("session_id", turn.SessionID), zap.Error(err))
		return nil
	default:
		s.logger.Error("turn failed",
			zap.String("session_id", turn.SessionID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "the tutor is unavailable right now, please try again"})
	}
}

// readTurn decodes the form fields of a chat request.
func readTurn(c echo.Context) (orchestrator.Turn, error) {
	turn := orchestrator.Turn{
		SessionID:     c.FormValue("session_id"),
		UserID:        c.Request().Header.Get(HeaderUserID),
		Message:       c.FormValue("message"),
		ExtractedText: c.FormValue("extracted_text"),
	}

	fh, err := c.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	case err != nil:
		return turn, err
	default:
		img, err := readImage(fh)
		if err != nil {
			return turn, err
		}
		turn.Image = img
	}
	return turn, turn.Validate()
}

func readImage(fh *multipart.FileHeader) (*vision.Image, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &vision.Image{
		Data:        data,
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
	}, nil
}

// NewSession allocates a session.
// POST /new_session
func (s *Server) NewSession(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"session_id": s.chat.NewSession()})
}

// ResetSession starts a new exercise in a session.
// POST /api/sessions/:id/reset
func (s *Server) ResetSession(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "session id is required"})
	}
	s.chat.ResetSession(id)
	return c.NoContent(http.StatusNoContent)
}

// Health reports liveness.
// GET /health
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
