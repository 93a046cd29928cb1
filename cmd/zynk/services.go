package main

import (
	"context"

	"gorm.io/gorm"

	"github.com/zynkhq/zynk/internal/config"
	"github.com/zynkhq/zynk/internal/logger"
	"github.com/zynkhq/zynk/internal/services"
	"github.com/zynkhq/zynk/internal/services/inference"
	"github.com/zynkhq/zynk/internal/services/objectstore"
	"github.com/zynkhq/zynk/internal/services/segmentstore"
)

// registerServices builds the session collaborators and publishes them in the
// service registry for modules to resolve during Init.
func registerServices(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	infer, err := inference.NewService(ctx, cfg.Inference, logger.Get())
	if err != nil {
		return err
	}
	services.RegisterService[services.InferenceService](services.InferenceServiceName, infer)

	store, err := objectstore.New(ctx, cfg.Storage, logger.Get())
	if err != nil {
		return err
	}
	services.RegisterService[services.StorageService](services.StorageServiceName, store)

	services.RegisterService[services.SegmentService](services.SegmentServiceName, segmentstore.New(db))
	return nil
}
