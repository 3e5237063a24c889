package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
	loadSql "github.com/siherrmann/graphrag/sql"
)

// DocumentsDBHandlerFunctions defines the interface for Documents database operations.
type DocumentsDBHandlerFunctions interface {
	InsertDocument(ctx context.Context, doc *model.Document) error
	SelectDocument(ctx context.Context, id uuid.UUID) (*model.Document, error)
	SelectAllDocuments(ctx context.Context, lastCreatedAt *time.Time, limit int) ([]*model.Document, error)
	SelectDocumentsBySimilarity(ctx context.Context, embedding []float32, minSimilarity float64, limit int) ([]*model.DocumentMatch, error)
}

// DocumentsDBHandler handles document-related database operations
type DocumentsDBHandler struct {
	db *helper.Database
	q  helper.Querier
}

// NewDocumentsDBHandler creates a new documents database handler.
// It loads the document-related SQL functions and creates the table with
// an embedding column of embeddingDim dimensions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewDocumentsDBHandler(db *helper.Database, embeddingDim int, force bool) (*DocumentsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	documentsDbHandler := &DocumentsDBHandler{
		db: db,
		q:  db.Instance,
	}

	err := loadSql.LoadDocumentsSql(documentsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load documents sql", err)
	}

	err = documentsDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized DocumentsDBHandler")

	return documentsDbHandler, nil
}

// CreateTable creates the 'documents' table and its indexes if they do not exist.
func (h *DocumentsDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_documents($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing documents table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table documents")

	return nil
}

// WithTx returns a handler running its statements inside tx.
func (h *DocumentsDBHandler) WithTx(tx *sql.Tx) *DocumentsDBHandler {
	return &DocumentsDBHandler{db: h.db, q: tx}
}

// InsertDocument inserts a new document. A nil ID is generated by the database.
func (h *DocumentsDBHandler) InsertDocument(ctx context.Context, doc *model.Document) error {
	var id interface{}
	if doc.ID != uuid.Nil {
		id = doc.ID
	}

	row := h.q.QueryRowContext(
		ctx,
		`SELECT * FROM insert_document($1, $2, $3, $4, $5, $6, $7)`,
		id,
		doc.Title,
		doc.Source,
		doc.Text,
		doc.Weight,
		toVector(doc.Embedding),
		doc.Metadata,
	)

	err := row.Scan(
		&doc.ID,
		&doc.Title,
		&doc.Source,
		&doc.Text,
		&doc.Weight,
		&doc.Metadata,
		&doc.CreatedAt,
	)
	if err != nil {
		return storageError("scan", err)
	}

	return nil
}

// SelectDocument retrieves a document by ID
func (h *DocumentsDBHandler) SelectDocument(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	doc := &model.Document{}
	row := h.q.QueryRowContext(
		ctx,
		`SELECT * FROM select_document($1)`,
		id,
	)

	err := row.Scan(
		&doc.ID,
		&doc.Title,
		&doc.Source,
		&doc.Text,
		&doc.Weight,
		&doc.Metadata,
		&doc.CreatedAt,
	)
	if err != nil {
		return nil, storageError("scan", err)
	}

	return doc, nil
}

// SelectAllDocuments retrieves documents newest first, paginated by creation time
func (h *DocumentsDBHandler) SelectAllDocuments(ctx context.Context, lastCreatedAt *time.Time, limit int) ([]*model.Document, error) {
	rows, err := h.q.QueryContext(
		ctx,
		`SELECT * FROM select_all_documents($1, $2)`,
		lastCreatedAt,
		limit,
	)
	if err != nil {
		return nil, storageError("query", err)
	}
	defer rows.Close()

	var documents []*model.Document
	for rows.Next() {
		doc := &model.Document{}
		err := rows.Scan(
			&doc.ID,
			&doc.Title,
			&doc.Source,
			&doc.Text,
			&doc.Weight,
			&doc.Metadata,
			&doc.CreatedAt,
		)
		if err != nil {
			return nil, storageError("scan", err)
		}

		documents = append(documents, doc)
	}

	err = rows.Err()
	if err != nil {
		return nil, storageError("rows error", err)
	}

	return documents, nil
}

// SelectDocumentsBySimilarity returns up to limit documents whose embedding has
// at least minSimilarity cosine similarity to embedding, most similar first,
// each with the entities it mentions.
func (h *DocumentsDBHandler) SelectDocumentsBySimilarity(ctx context.Context, embedding []float32, minSimilarity float64, limit int) ([]*model.DocumentMatch, error) {
	rows, err := h.q.QueryContext(
		ctx,
		`SELECT * FROM select_documents_by_similarity($1, $2, $3)`,
		toVector(embedding),
		minSimilarity,
		limit,
	)
	if err != nil {
		return nil, storageError("query", err)
	}
	defer rows.Close()

	var matches []*model.DocumentMatch
	for rows.Next() {
		match := &model.DocumentMatch{}
		var mentions []string
		err := rows.Scan(
			&match.DocumentID,
			&match.Similarity,
			pq.Array(&mentions),
		)
		if err != nil {
			return nil, storageError("scan", err)
		}

		match.Mentions = make([]model.RecordRef, 0, len(mentions))
		for _, m := range mentions {
			ref, err := model.ParseRecordRef(m)
			if err != nil {
				return nil, storageError("parse mention", err)
			}
			match.Mentions = append(match.Mentions, ref)
		}

		matches = append(matches, match)
	}

	err = rows.Err()
	if err != nil {
		return nil, storageError("rows error", err)
	}

	return matches, nil
}
