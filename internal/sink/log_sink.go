// Package sink provides CreateSink implementations for normalized items.
package sink

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rodforge/supplier-import/internal/importer"
)

// LogSink accepts every item and records it in the service log. It stands in
// for a commerce-platform write path in environments without one.
type LogSink struct {
	logger *zap.Logger
	ids    importer.IDGenerator
}

// NewLogSink constructs a LogSink.
func NewLogSink(logger *zap.Logger, ids importer.IDGenerator) (*LogSink, error) {
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger, ids: ids}, nil
}

// CreateItem implements importer.CreateSink.
func (s *LogSink) CreateItem(_ context.Context, item importer.NormalizedItem) (importer.CreateResult, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return importer.CreateResult{}, fmt.Errorf("new item id: %w", err)
	}
	s.logger.Info("item created",
		zap.String("id", id),
		zap.String("title", item.Title),
		zap.String("sku", item.SKU),
		zap.String("vendor", item.Vendor),
		zap.String("dedupe_key", item.DedupeKey),
		zap.Strings("warnings", item.Warnings),
	)
	return importer.CreateResult{Status: importer.CreateStatusCreated, ID: id}, nil
}
