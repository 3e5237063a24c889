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

// DisambiguationsDBHandlerFunctions defines the interface for Disambiguations database operations.
type DisambiguationsDBHandlerFunctions interface {
	InsertDisambiguation(ctx context.Context, d *model.Disambiguation) error
	SelectDisambiguation(ctx context.Context, key string) (*model.Disambiguation, error)
	SelectNearest(ctx context.Context, embedding []float32, k int) ([]*model.Candidate, error)
	SelectDuplicates(ctx context.Context, minSimilarity float64, limit int) ([]*model.DuplicatePair, error)
}

// DisambiguationsDBHandler handles disambiguation record database operations
type DisambiguationsDBHandler struct {
	db *helper.Database
	q  helper.Querier
}

// NewDisambiguationsDBHandler creates a new disambiguations database handler.
// If force is true, it will reload the SQL functions even if they already exist.
func NewDisambiguationsDBHandler(db *helper.Database, embeddingDim int, force bool) (*DisambiguationsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	disambiguationsDbHandler := &DisambiguationsDBHandler{
		db: db,
		q:  db.Instance,
	}

	err := loadSql.LoadDisambiguationsSql(disambiguationsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load disambiguations sql", err)
	}

	err = disambiguationsDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized DisambiguationsDBHandler")

	return disambiguationsDbHandler, nil
}

// CreateTable creates the 'disambiguations' table and its indexes if they do not exist.
func (h *DisambiguationsDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_disambiguations($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing disambiguations table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table disambiguations")

	return nil
}

// WithTx returns a handler running its statements inside tx.
func (h *DisambiguationsDBHandler) WithTx(tx *sql.Tx) *DisambiguationsDBHandler {
	return &DisambiguationsDBHandler{db: h.db, q: tx}
}

// InsertDisambiguation stores the record unless its key is already registered.
func (h *DisambiguationsDBHandler) InsertDisambiguation(ctx context.Context, d *model.Disambiguation) error {
	if len(d.Embedding) == 0 {
		return model.NewKindError(model.ErrValidation, "insert disambiguation", fmt.Errorf("embedding of %q is empty", d.EntityKey))
	}

	row := h.q.QueryRowContext(
		ctx,
		`SELECT * FROM insert_disambiguation($1, $2, $3)`,
		d.EntityKey,
		d.Label,
		toVector(d.Embedding),
	)

	err := row.Scan(
		&d.EntityKey,
		&d.Label,
		&d.CreatedAt,
	)
	if err != nil {
		return storageError("scan", err)
	}

	return nil
}

// SelectDisambiguation retrieves the record of a canonical key
func (h *DisambiguationsDBHandler) SelectDisambiguation(ctx context.Context, key string) (*model.Disambiguation, error) {
	d := &model.Disambiguation{}
	row := h.q.QueryRowContext(
		ctx,
		`SELECT * FROM select_disambiguation($1)`,
		key,
	)

	err := row.Scan(
		&d.EntityKey,
		&d.Label,
		&d.CreatedAt,
	)
	if err != nil {
		return nil, storageError("scan", err)
	}

	return d, nil
}

// SelectNearest returns the k records closest to embedding by cosine similarity.
func (h *DisambiguationsDBHandler) SelectNearest(ctx context.Context, embedding []float32, k int) ([]*model.Candidate, error) {
	rows, err := h.q.QueryContext(
		ctx,
		`SELECT * FROM select_disambiguations_by_similarity($1, $2)`,
		toVector(embedding),
		k,
	)
	if err != nil {
		return nil, storageError("query", err)
	}
	return scanCandidates(rows)
}

// SelectDuplicates returns pairs of distinct keys whose embeddings have at
// least minSimilarity cosine similarity, most similar first.
func (h *DisambiguationsDBHandler) SelectDuplicates(ctx context.Context, minSimilarity float64, limit int) ([]*model.DuplicatePair, error) {
	rows, err := h.q.QueryContext(
		ctx,
		`SELECT * FROM select_duplicate_disambiguations($1, $2)`,
		minSimilarity,
		limit,
	)
	if err != nil {
		return nil, storageError("query", err)
	}
	defer rows.Close()

	var pairs []*model.DuplicatePair
	for rows.Next() {
		pair := &model.DuplicatePair{}
		err := rows.Scan(
			&pair.LeftKey,
			&pair.LeftLabel,
			&pair.RightKey,
			&pair.RightLabel,
			&pair.Similarity,
		)
		if err != nil {
			return nil, storageError("scan", err)
		}

		pairs = append(pairs, pair)
	}

	err = rows.Err()
	if err != nil {
		return nil, storageError("rows error", err)
	}

	return pairs, nil
}
