// Package log implements a publisher that writes run events to the logger.
// It is the default when no Pub/Sub project is configured.
package log

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/cafemap/cafemap/internal/cafemap"
)

// Publisher logs each payload instead of sending it anywhere.
type Publisher struct {
	logger *zap.Logger
	idGen  cafemap.IDGenerator
}

// New returns a log Publisher.
func New(logger *zap.Logger, idGen cafemap.IDGenerator) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{logger: logger, idGen: idGen}
}

// Publish logs the payload and returns a generated message id.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	id := "log-publish"
	if p.idGen != nil {
		if generated, err := p.idGen.NewID(); err == nil {
			id = generated
		}
	}
	p.logger.Info("run event",
		zap.String("topic", topic),
		zap.String("message_id", id),
		zap.ByteString("payload", data),
	)
	return id, nil
}
