package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
	loadSql "github.com/siherrmann/graphrag/sql"
)

// EntitiesDBHandlerFunctions defines the interface for Entities database operations.
type EntitiesDBHandlerFunctions interface {
	UpsertEntity(ctx context.Context, entity *model.CanonicalEntity) error
	SelectEntity(ctx context.Context, key string) (*model.CanonicalEntity, error)
	SelectNearest(ctx context.Context, embedding []float32, k int) ([]*model.Candidate, error)
}

// EntitiesDBHandler handles canonical entity database operations
type EntitiesDBHandler struct {
	db *helper.Database
	q  helper.Querier
}

// NewEntitiesDBHandler creates a new entities database handler.
// If force is true, it will reload the SQL functions even if they already exist.
func NewEntitiesDBHandler(db *helper.Database, embeddingDim int, force bool) (*EntitiesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	entitiesDbHandler := &EntitiesDBHandler{
		db: db,
		q:  db.Instance,
	}

	err := loadSql.LoadEntitiesSql(entitiesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load entities sql", err)
	}

	err = entitiesDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EntitiesDBHandler")

	return entitiesDbHandler, nil
}

// CreateTable creates the 'entities' table and its indexes if they do not exist.
func (h *EntitiesDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_entities($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing entities table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table entities")

	return nil
}

// WithTx returns a handler running its statements inside tx.
func (h *EntitiesDBHandler) WithTx(tx *sql.Tx) *EntitiesDBHandler {
	return &EntitiesDBHandler{db: h.db, q: tx}
}

// UpsertEntity creates the entity or merges its data into the stored one.
// entity is updated with the stored state.
func (h *EntitiesDBHandler) UpsertEntity(ctx context.Context, entity *model.CanonicalEntity) error {
	data := entity.Data
	if data == nil {
		data = model.Metadata{}
	}

	row := h.q.QueryRowContext(
		ctx,
		`SELECT * FROM upsert_entity($1, $2, $3, $4)`,
		entity.Key,
		entity.Label,
		data,
		toVector(entity.LabelEmbedding),
	)

	err := row.Scan(
		&entity.Key,
		&entity.Label,
		&entity.Data,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	)
	if err != nil {
		return storageError("scan", err)
	}

	return nil
}

// SelectEntity retrieves an entity by its canonical key
func (h *EntitiesDBHandler) SelectEntity(ctx context.Context, key string) (*model.CanonicalEntity, error) {
	entity := &model.CanonicalEntity{}
	row := h.q.QueryRowContext(
		ctx,
		`SELECT * FROM select_entity($1)`,
		key,
	)

	err := row.Scan(
		&entity.Key,
		&entity.Label,
		&entity.Data,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	)
	if err != nil {
		return nil, storageError("scan", err)
	}

	return entity, nil
}

// SelectNearest returns the k entities whose label embedding is closest to embedding.
func (h *EntitiesDBHandler) SelectNearest(ctx context.Context, embedding []float32, k int) ([]*model.Candidate, error) {
	rows, err := h.q.QueryContext(
		ctx,
		`SELECT * FROM select_entities_by_similarity($1, $2)`,
		toVector(embedding),
		k,
	)
	if err != nil {
		return nil, storageError("query", err)
	}
	return scanCandidates(rows)
}

func scanCandidates(rows *sql.Rows) ([]*model.Candidate, error) {
	defer rows.Close()

	var candidates []*model.Candidate
	for rows.Next() {
		candidate := &model.Candidate{}
		err := rows.Scan(
			&candidate.Key,
			&candidate.Label,
			&candidate.Similarity,
		)
		if err != nil {
			return nil, storageError("scan", err)
		}

		candidates = append(candidates, candidate)
	}

	err := rows.Err()
	if err != nil {
		return nil, storageError("rows error", err)
	}

	return candidates, nil
}
