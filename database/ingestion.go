package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
)

// IngestionDBHandler commits ingestion batches across all tables.
type IngestionDBHandler struct {
	db              *helper.Database
	documents       *DocumentsDBHandler
	chunks          *ChunksDBHandler
	disambiguations *DisambiguationsDBHandler
	entities        *EntitiesDBHandler
	edges           *EdgesDBHandler
}

// NewIngestionDBHandler combines the table handlers into a batch committer.
func NewIngestionDBHandler(db *helper.Database, documents *DocumentsDBHandler, chunks *ChunksDBHandler, disambiguations *DisambiguationsDBHandler, entities *EntitiesDBHandler, edges *EdgesDBHandler) (*IngestionDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	return &IngestionDBHandler{
		db:              db,
		documents:       documents,
		chunks:          chunks,
		disambiguations: disambiguations,
		entities:        entities,
		edges:           edges,
	}, nil
}

// CommitIngestion writes the whole batch in one transaction.
// Either every record and edge of the batch is stored or none is.
func (h *IngestionDBHandler) CommitIngestion(ctx context.Context, batch *model.IngestionBatch) (err error) {
	if batch == nil || batch.Document == nil {
		return model.NewKindError(model.ErrValidation, "commit ingestion", fmt.Errorf("batch has no document"))
	}

	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return storageError("begin transaction", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				h.db.Logger.Error("Rollback failed", "error", rbErr)
			}
		}
	}()

	err = h.commit(ctx, tx, batch)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return storageError("commit transaction", err)
	}

	h.db.Logger.Debug(
		"Committed ingestion",
		"document", batch.Document.ID,
		"chunks", len(batch.Chunks),
		"entities", len(batch.Entities),
		"mentions", len(batch.Mentions),
		"relations", len(batch.Relations),
	)

	return nil
}

func (h *IngestionDBHandler) commit(ctx context.Context, tx *sql.Tx, batch *model.IngestionBatch) error {
	doc := batch.Document
	err := h.documents.WithTx(tx).InsertDocument(ctx, doc)
	if err != nil {
		return helper.NewError("insert document", err)
	}
	if doc.ID == uuid.Nil {
		return model.NewKindError(model.ErrStorage, "insert document", fmt.Errorf("no identifier returned"))
	}

	err = h.chunks.WithTx(tx).InsertChunks(ctx, doc.ID, batch.Chunks)
	if err != nil {
		return helper.NewError("insert chunks", err)
	}

	disambiguations := h.disambiguations.WithTx(tx)
	for _, d := range batch.Disambiguations {
		err = disambiguations.InsertDisambiguation(ctx, d)
		if err != nil {
			return helper.NewError("insert disambiguation", err)
		}
	}

	entities := h.entities.WithTx(tx)
	for _, e := range batch.Entities {
		err = entities.UpsertEntity(ctx, e)
		if err != nil {
			return helper.NewError("upsert entity", err)
		}
	}

	edges := h.edges.WithTx(tx)
	for _, m := range batch.Mentions {
		m.Source = doc.Ref()
		if m.Relation == "" {
			m.Relation = model.RelationMentions
		}
		err = edges.UpsertEdge(ctx, m, batch.WeightMerge)
		if err != nil {
			return helper.NewError("upsert mention", err)
		}
	}

	for _, r := range batch.Relations {
		err = edges.UpsertEdge(ctx, r, batch.WeightMerge)
		if err != nil {
			return helper.NewError("upsert relation", err)
		}
	}

	return nil
}
