package database

import (
	"context"
	"fmt"
	"time"

	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
)

// IndexTarget names an embedding column carrying a vector index.
type IndexTarget string

const (
	IndexDocuments       IndexTarget = "documents"
	IndexChunks          IndexTarget = "chunks"
	IndexEntities        IndexTarget = "entities"
	IndexDisambiguations IndexTarget = "disambiguations"
)

type vectorIndex struct {
	table  string
	column string
	name   string
}

var vectorIndexes = map[IndexTarget]vectorIndex{
	IndexDocuments:       {table: "documents", column: "embedding", name: "idx_documents_embedding"},
	IndexChunks:          {table: "chunks", column: "embedding", name: "idx_chunks_embedding"},
	IndexEntities:        {table: "entities", column: "label_embedding", name: "idx_entities_label_embedding"},
	IndexDisambiguations: {table: "disambiguations", column: "embedding", name: "idx_disambiguations_embedding"},
}

// ChangeIndexType rebuilds the vector index of target as HNSW or IVFFlat.
// indexType: "hnsw" or "ivfflat"
// params: optional parameters for index creation
//   - For HNSW: "m" (int, default 16), "ef_construction" (int, default 64)
//   - For IVFFlat: "lists" (int, default 100)
func ChangeIndexType(ctx context.Context, db *helper.Database, target IndexTarget, indexType string, params map[string]interface{}) error {
	index, ok := vectorIndexes[target]
	if !ok {
		return model.NewKindError(model.ErrValidation, "change index type", fmt.Errorf("unknown index target: %s", target))
	}

	var using string
	switch indexType {
	case "hnsw":
		m := 16
		efConstruction := 64

		if mVal, ok := params["m"].(int); ok {
			m = mVal
		}
		if efVal, ok := params["ef_construction"].(int); ok {
			efConstruction = efVal
		}

		using = fmt.Sprintf(`hnsw (%s vector_cosine_ops) WITH (m = %d, ef_construction = %d)`, index.column, m, efConstruction)

	case "ivfflat":
		lists := 100
		if listsVal, ok := params["lists"].(int); ok {
			lists = listsVal
		}

		using = fmt.Sprintf(`ivfflat (%s vector_cosine_ops) WITH (lists = %d)`, index.column, lists)

	default:
		return model.NewKindError(model.ErrValidation, "change index type", fmt.Errorf("unsupported index type: %s (use 'hnsw' or 'ivfflat')", indexType))
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err := db.Instance.ExecContext(ctx, fmt.Sprintf(`DROP INDEX IF EXISTS %s;`, index.name))
	if err != nil {
		return storageError("drop index", err)
	}

	_, err = db.Instance.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX %s ON %s USING %s;`, index.name, index.table, using))
	if err != nil {
		return storageError("create index", err)
	}

	db.Logger.Info("Changed vector index", "target", target, "type", indexType, "params", params)

	return nil
}
