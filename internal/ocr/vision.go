package ocr

import (
	"context"
	"fmt"
	"os"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"go.uber.org/zap"

	"github.com/cafemap/cafemap/internal/cafemap"
	"github.com/cafemap/cafemap/internal/metrics"
)

// Vision performs OCR through the Cloud Vision text detection API.
type Vision struct {
	client *vision.ImageAnnotatorClient
	logger *zap.Logger
}

// NewVision builds the Vision adapter using ambient GCP credentials.
func NewVision(ctx context.Context, logger *zap.Logger) (*Vision, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := vision.NewImageAnnotatorClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &Vision{client: client, logger: logger}, nil
}

// Close releases the underlying client.
func (v *Vision) Close() error {
	return v.client.Close()
}

// Text reads the image from disk and returns the full detected text.
// Missing or unreadable files yield empty text, not an error.
func (v *Vision) Text(ctx context.Context, imagePath string) (string, error) {
	content, err := os.ReadFile(imagePath)
	if err != nil {
		v.logger.Debug("image not readable, skipping ocr",
			zap.String("image", imagePath), zap.Error(err))
		metrics.ObserveOCR("vision", "unreadable")
		return "", nil
	}

	batch, err := v.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image: &visionpb.Image{Content: content},
			Features: []*visionpb.Feature{
				{Type: visionpb.Feature_TEXT_DETECTION},
			},
		}},
	})
	if err != nil {
		metrics.ObserveOCR("vision", "error")
		return "", &cafemap.ProviderError{Provider: "vision", Transient: true, Err: err}
	}
	resp := batch.GetResponses()[0]
	if resp.GetError() != nil {
		// Vision reports undecodable images here; treat as empty text.
		v.logger.Debug("vision rejected image",
			zap.String("image", imagePath),
			zap.String("reason", resp.GetError().GetMessage()))
		metrics.ObserveOCR("vision", "unreadable")
		return "", nil
	}
	metrics.ObserveOCR("vision", "ok")
	if full := resp.GetFullTextAnnotation(); full != nil {
		return full.GetText(), nil
	}
	if annotations := resp.GetTextAnnotations(); len(annotations) > 0 {
		return annotations[0].GetDescription(), nil
	}
	return "", nil
}
