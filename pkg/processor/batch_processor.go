package processor

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// handleBatchCompleted finalizes a finished import batch and refreshes
// duplicate detection over the grown directory.
func (p *Processor) handleBatchCompleted(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.handleBatchCompleted")
	defer span.End()

	evt, err := msg.ParseBatchCompleted()
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to parse batch completed message")
		return err
	}

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":    evt.BatchID,
		"source_name": evt.SourceName,
		"status":      evt.Status,
	})
	log.Info("Received batch completed message")

	if evt.BatchID != "" {
		if err := p.batches.Complete(ctx, evt.BatchID, batchStatus(evt.Status)); err != nil {
			log.WithError(err).Warn("Failed to finalize import batch")
		}
	}

	// A failed batch changed nothing worth rescanning.
	if evt.Status == models.ImportBatchStatusFailed {
		log.Debug("Skipping detection for failed batch")
		return nil
	}

	if p.detection == nil {
		return nil
	}

	result, err := p.detection.RunDetection(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to run detection after batch import")
		return err
	}

	log.WithFields(map[string]any{
		"groups_found":   result.GroupsFound,
		"groups_created": result.GroupsCreated,
	}).Info("Detection run completed after batch import")
	return nil
}

// batchStatus maps the source's reported status onto the batch lifecycle.
// Sources report "success", "partial" or "failed".
func batchStatus(reported string) string {
	switch reported {
	case "", "success", models.ImportBatchStatusCompleted:
		return models.ImportBatchStatusCompleted
	case models.ImportBatchStatusPartial:
		return models.ImportBatchStatusPartial
	case models.ImportBatchStatusFailed:
		return models.ImportBatchStatusFailed
	default:
		return models.ImportBatchStatusCompleted
	}
}
