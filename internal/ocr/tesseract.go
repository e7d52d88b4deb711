package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/cafemap/cafemap/internal/cafemap"
	"github.com/cafemap/cafemap/internal/metrics"
)

// TesseractConfig controls the tesseract subprocess adapter.
type TesseractConfig struct {
	// Binary is the executable name or path; defaults to "tesseract".
	Binary string
	// Languages is the -l argument, e.g. "chi_tra+eng".
	Languages string
}

// Tesseract shells out to the tesseract binary per image.
type Tesseract struct {
	cfg    TesseractConfig
	logger *zap.Logger
}

// NewTesseract verifies the binary is on PATH and builds the adapter.
func NewTesseract(cfg TesseractConfig, logger *zap.Logger) (*Tesseract, error) {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Languages == "" {
		cfg.Languages = "chi_tra+eng"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := exec.LookPath(cfg.Binary); err != nil {
		return nil, &cafemap.ConfigError{Stage: "ocr/tesseract", Reason: fmt.Sprintf("binary %q not found", cfg.Binary)}
	}
	return &Tesseract{cfg: cfg, logger: logger}, nil
}

// Text runs tesseract over the image and returns the recognized text.
// Missing or unreadable images yield empty text, not an error.
func (t *Tesseract) Text(ctx context.Context, imagePath string) (string, error) {
	if _, err := os.Stat(imagePath); err != nil {
		t.logger.Debug("image not readable, skipping ocr",
			zap.String("image", imagePath), zap.Error(err))
		metrics.ObserveOCR("tesseract", "unreadable")
		return "", nil
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.cfg.Binary, imagePath, "stdout", "-l", t.cfg.Languages)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			metrics.ObserveOCR("tesseract", "timeout")
			return "", &cafemap.ProviderError{Provider: "tesseract", Transient: true, Err: ctx.Err()}
		}
		// A decode failure on a corrupt image is "no text", not a failure.
		t.logger.Debug("tesseract exited nonzero",
			zap.String("image", imagePath),
			zap.String("stderr", strings.TrimSpace(stderr.String())),
			zap.Error(err))
		metrics.ObserveOCR("tesseract", "unreadable")
		return "", nil
	}
	metrics.ObserveOCR("tesseract", "ok")
	return stdout.String(), nil
}
