// Package ocr provides implementations of the text-from-image collaborator.
package ocr

import "context"

// Noop always returns empty text. Used when no OCR engine is configured;
// the OCR stage then degrades to "image held no address".
type Noop struct{}

// Text implements cafemap.OCR.
func (Noop) Text(_ context.Context, _ string) (string, error) {
	return "", nil
}
