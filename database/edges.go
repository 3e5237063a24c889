package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
	loadSql "github.com/siherrmann/graphrag/sql"
)

// EdgesDBHandlerFunctions defines the interface for Edges database operations.
type EdgesDBHandlerFunctions interface {
	UpsertEdge(ctx context.Context, edge *model.Edge, merge model.WeightMerge) error
	SelectEdge(ctx context.Context, id uuid.UUID) (*model.Edge, error)
	SelectEdgesConnected(ctx context.Context, ref model.RecordRef) ([]*model.Edge, error)
	SelectEdgesByRelation(ctx context.Context, relation string, limit int) ([]*model.Edge, error)
}

// EdgesDBHandler handles edge-related database operations
type EdgesDBHandler struct {
	db *helper.Database
	q  helper.Querier
}

// NewEdgesDBHandler creates a new edges database handler.
// If force is true, it will reload the SQL functions even if they already exist.
func NewEdgesDBHandler(db *helper.Database, force bool) (*EdgesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	edgesDbHandler := &EdgesDBHandler{
		db: db,
		q:  db.Instance,
	}

	err := loadSql.LoadEdgesSql(edgesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load edges sql", err)
	}

	err = edgesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EdgesDBHandler")

	return edgesDbHandler, nil
}

// CreateTable creates the 'edges' table and its indexes if they do not exist.
func (h *EdgesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_edges();`)
	if err != nil {
		log.Panicf("error initializing edges table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table edges")

	return nil
}

// WithTx returns a handler running its statements inside tx.
func (h *EdgesDBHandler) WithTx(tx *sql.Tx) *EdgesDBHandler {
	return &EdgesDBHandler{db: h.db, q: tx}
}

// UpsertEdge creates the edge or combines its weight with the stored one
// using merge. edge is updated with the stored state.
func (h *EdgesDBHandler) UpsertEdge(ctx context.Context, edge *model.Edge, merge model.WeightMerge) error {
	if err := edge.Source.Validate(); err != nil {
		return err
	}
	if err := edge.Target.Validate(); err != nil {
		return err
	}
	if edge.Relation == "" {
		return model.NewKindError(model.ErrValidation, "upsert edge", fmt.Errorf("relation is empty"))
	}

	row := h.q.QueryRowContext(
		ctx,
		`SELECT * FROM upsert_edge($1, $2, $3, $4, $5, $6, $7)`,
		string(edge.Source.Table),
		edge.Source.ID,
		edge.Relation,
		string(edge.Target.Table),
		edge.Target.ID,
		model.ClampWeight(edge.Weight),
		string(merge),
	)

	return scanEdge(row, edge)
}

// SelectEdge retrieves an edge by ID
func (h *EdgesDBHandler) SelectEdge(ctx context.Context, id uuid.UUID) (*model.Edge, error) {
	row := h.q.QueryRowContext(
		ctx,
		`SELECT * FROM select_edge($1)`,
		id,
	)

	edge := &model.Edge{}
	if err := scanEdge(row, edge); err != nil {
		return nil, err
	}

	return edge, nil
}

// SelectEdgesConnected retrieves every edge having ref as source or target,
// ascending by weight.
func (h *EdgesDBHandler) SelectEdgesConnected(ctx context.Context, ref model.RecordRef) ([]*model.Edge, error) {
	rows, err := h.q.QueryContext(
		ctx,
		`SELECT * FROM select_edges_connected($1, $2)`,
		string(ref.Table),
		ref.ID,
	)
	if err != nil {
		return nil, storageError("query", err)
	}
	return scanEdges(rows)
}

// SelectEdgesByRelation retrieves up to limit edges of one relation type, oldest first.
func (h *EdgesDBHandler) SelectEdgesByRelation(ctx context.Context, relation string, limit int) ([]*model.Edge, error) {
	rows, err := h.q.QueryContext(
		ctx,
		`SELECT * FROM select_edges_by_relation($1, $2)`,
		relation,
		limit,
	)
	if err != nil {
		return nil, storageError("query", err)
	}
	return scanEdges(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEdge(row rowScanner, edge *model.Edge) error {
	var sourceTable, targetTable string
	err := row.Scan(
		&edge.ID,
		&sourceTable,
		&edge.Source.ID,
		&edge.Relation,
		&targetTable,
		&edge.Target.ID,
		&edge.Weight,
		&edge.CreatedAt,
		&edge.UpdatedAt,
	)
	if err != nil {
		return storageError("scan", err)
	}

	edge.Source.Table = model.RecordTable(sourceTable)
	edge.Target.Table = model.RecordTable(targetTable)
	return nil
}

func scanEdges(rows *sql.Rows) ([]*model.Edge, error) {
	defer rows.Close()

	var edges []*model.Edge
	for rows.Next() {
		edge := &model.Edge{}
		if err := scanEdge(rows, edge); err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}

	err := rows.Err()
	if err != nil {
		return nil, storageError("rows error", err)
	}

	return edges, nil
}
