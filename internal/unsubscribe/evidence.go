package unsubscribe

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unsubscribe-agent/internal/ports"
	"unsubscribe-agent/pkg/apperr"
	"unsubscribe-agent/pkg/logg"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const debugSnippetLimit = 2000

// Evidence writes screenshots and debug dumps into one directory, creating
// it on first use.
type Evidence struct {
	dir    string
	logger *zap.Logger
}

func NewEvidence(dir string, logger *zap.Logger) *Evidence {
	return &Evidence{
		dir:    dir,
		logger: logger.With(zap.String(logg.Layer, "Evidence")),
	}
}

func (e *Evidence) path(label, ext string) string {
	name := fmt.Sprintf("unsub-%s-%d-%s.%s", label, time.Now().UnixMilli(), uuid.NewString()[:8], ext)

	return filepath.Join(e.dir, name)
}

// Screenshot captures a full-page screenshot and returns its path. Failures
// are logged and yield "".
func (e *Evidence) Screenshot(page ports.Page, label string) string {
	const op = "Screenshot"

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		e.logger.Warn("Evidence dir unavailable", zap.Error(apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "mkdir_failed",
			apperr.MetaStage:  apperr.StageScreenshot,
		})))

		return ""
	}

	path := e.path(label, "png")

	if err := page.Screenshot(path, true); err != nil {
		e.logger.Warn("Screenshot failed", zap.String("path", path), zap.Error(err))

		return ""
	}

	e.logger.Debug("Screenshot saved", zap.String("path", path))

	return path
}

// DumpHTML saves the first part of the page markup for post-mortem
// debugging and returns its path.
func (e *Evidence) DumpHTML(page ports.Page) string {
	html, err := page.Content()
	if err != nil {
		e.logger.Warn("Failed to read page content", zap.Error(err))

		return ""
	}

	snippet := truncate(html, debugSnippetLimit)

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		e.logger.Warn("Evidence dir unavailable", zap.Error(err))

		return ""
	}

	path := e.path("debug", "html")

	if err := os.WriteFile(path, []byte(snippet), 0o644); err != nil {
		e.logger.Warn("Failed to write HTML dump", zap.Error(err))

		return ""
	}

	e.logger.Debug("HTML snippet saved", zap.String("path", path), zap.String("snippet", snippet))

	return path
}
