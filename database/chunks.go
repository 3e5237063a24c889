package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
	loadSql "github.com/siherrmann/graphrag/sql"
)

// ChunksDBHandlerFunctions defines the interface for Chunks database operations.
type ChunksDBHandlerFunctions interface {
	InsertChunks(ctx context.Context, documentID uuid.UUID, chunks []*model.Chunk) error
	SelectChunk(ctx context.Context, id uuid.UUID) (*model.Chunk, error)
	SelectChunksByDocument(ctx context.Context, documentID uuid.UUID) ([]*model.Chunk, error)
	SelectChunksBySimilarity(ctx context.Context, embedding []float32, minSimilarity float64, limit int) ([]*model.ChunkMatch, error)
}

// ChunksDBHandler handles chunk-related database operations
type ChunksDBHandler struct {
	db *helper.Database
	q  helper.Querier
}

// NewChunksDBHandler creates a new chunks database handler.
// The documents table must exist already since chunks reference it.
// If force is true, it will reload the SQL functions even if they already exist.
func NewChunksDBHandler(db *helper.Database, embeddingDim int, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	chunksDbHandler := &ChunksDBHandler{
		db: db,
		q:  db.Instance,
	}

	err := loadSql.LoadChunksSql(chunksDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = chunksDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler")

	return chunksDbHandler, nil
}

// CreateTable creates the 'chunks' table and its indexes if they do not exist.
func (h *ChunksDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing chunks table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table chunks")

	return nil
}

// WithTx returns a handler running its statements inside tx.
func (h *ChunksDBHandler) WithTx(tx *sql.Tx) *ChunksDBHandler {
	return &ChunksDBHandler{db: h.db, q: tx}
}

// InsertChunks inserts all chunks of a document in one statement.
// Chunk indexes follow slice order; IDs and timestamps are filled in.
func (h *ChunksDBHandler) InsertChunks(ctx context.Context, documentID uuid.UUID, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	embeddings := make([]string, len(chunks))
	for i, c := range chunks {
		if len(c.Embedding) == 0 {
			return storageError("insert chunks", fmt.Errorf("chunk %d has no embedding", i))
		}
		texts[i] = c.Text
		embeddings[i] = pgvector.NewVector(c.Embedding).String()
	}

	rows, err := h.q.QueryContext(
		ctx,
		`SELECT * FROM insert_chunks($1, $2, $3)`,
		documentID,
		pq.Array(texts),
		pq.Array(embeddings),
	)
	if err != nil {
		return storageError("query", err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		if i >= len(chunks) {
			return storageError("insert chunks", fmt.Errorf("more rows returned than chunks inserted"))
		}
		c := chunks[i]
		err := rows.Scan(
			&c.ID,
			&c.DocumentID,
			&c.Index,
			&c.Text,
			&c.CreatedAt,
		)
		if err != nil {
			return storageError("scan", err)
		}
		i++
	}

	err = rows.Err()
	if err != nil {
		return storageError("rows error", err)
	}
	if i != len(chunks) {
		return storageError("insert chunks", fmt.Errorf("inserted %d of %d chunks", i, len(chunks)))
	}

	return nil
}

// SelectChunk retrieves a chunk by ID
func (h *ChunksDBHandler) SelectChunk(ctx context.Context, id uuid.UUID) (*model.Chunk, error) {
	chunk := &model.Chunk{}
	row := h.q.QueryRowContext(
		ctx,
		`SELECT * FROM select_chunk($1)`,
		id,
	)

	err := row.Scan(
		&chunk.ID,
		&chunk.DocumentID,
		&chunk.Index,
		&chunk.Text,
		&chunk.CreatedAt,
	)
	if err != nil {
		return nil, storageError("scan", err)
	}

	return chunk, nil
}

// SelectChunksByDocument retrieves the chunks of a document in order
func (h *ChunksDBHandler) SelectChunksByDocument(ctx context.Context, documentID uuid.UUID) ([]*model.Chunk, error) {
	rows, err := h.q.QueryContext(
		ctx,
		`SELECT * FROM select_chunks_by_document($1)`,
		documentID,
	)
	if err != nil {
		return nil, storageError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.Index,
			&chunk.Text,
			&chunk.CreatedAt,
		)
		if err != nil {
			return nil, storageError("scan", err)
		}

		chunks = append(chunks, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, storageError("rows error", err)
	}

	return chunks, nil
}

// SelectChunksBySimilarity returns up to limit chunks with at least
// minSimilarity cosine similarity to embedding, most similar first.
func (h *ChunksDBHandler) SelectChunksBySimilarity(ctx context.Context, embedding []float32, minSimilarity float64, limit int) ([]*model.ChunkMatch, error) {
	rows, err := h.q.QueryContext(
		ctx,
		`SELECT * FROM select_chunks_by_similarity($1, $2, $3)`,
		toVector(embedding),
		minSimilarity,
		limit,
	)
	if err != nil {
		return nil, storageError("query", err)
	}
	defer rows.Close()

	var matches []*model.ChunkMatch
	for rows.Next() {
		chunk := &model.Chunk{}
		match := &model.ChunkMatch{Chunk: chunk}
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.Index,
			&chunk.Text,
			&chunk.CreatedAt,
			&match.Similarity,
		)
		if err != nil {
			return nil, storageError("scan", err)
		}

		matches = append(matches, match)
	}

	err = rows.Err()
	if err != nil {
		return nil, storageError("rows error", err)
	}

	return matches, nil
}
