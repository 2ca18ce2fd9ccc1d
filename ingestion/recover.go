package ingestion

import (
	"context"
	"time"

	"github.com/poiesic/ragline/core"
)

// interruptedMessage is recorded on documents released by RecoverStuck.
const interruptedMessage = "ingestion interrupted"

// RecoverStuck moves documents that have been processing for longer than
// olderThan to the error state so they can be ingested again. A process
// that dies mid-run leaves its document in processing; nothing else
// releases it. Returns the number of documents recovered.
func (p *Pipeline) RecoverStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	stuck, err := p.documents.ListDocumentsByStatus(ctx, core.StatusProcessing, cutoff)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, candidate := range stuck {
		var released bool
		err := p.documents.WithTransaction(ctx, func(ctx context.Context) error {
			doc, err := p.documents.GetDocument(ctx, candidate.ID)
			if err != nil {
				return err
			}
			// re-check: a run may have finished since the scan
			if doc.Status != core.StatusProcessing || !doc.UpdatedAt.Before(cutoff) {
				return nil
			}
			released = true
			return p.finish(ctx, doc, core.StatusError, map[string]string{core.MetaLastError: interruptedMessage})
		})
		if err != nil {
			p.logger.Warn("could not recover document", "document", candidate.ID, "err", err)
			continue
		}
		if released {
			recovered++
			p.logger.Info("recovered stuck document", "document", candidate.ID, "since", candidate.UpdatedAt)
		}
	}
	return recovered, nil
}
