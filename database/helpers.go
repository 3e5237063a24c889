package database

import (
	"database/sql"
	"errors"

	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/graphrag/model"
)

// storageError tags a database error with its kind.
// A missing row becomes ErrNotFound, everything else ErrStorage.
func storageError(operation string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewKindError(model.ErrNotFound, operation, err)
	}
	return model.NewKindError(model.ErrStorage, operation, err)
}

// toVector converts an embedding into a pgvector parameter; empty embeddings are NULL.
func toVector(embedding []float32) interface{} {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}
