package sqlutil

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(sql.ErrNoRows))
}

func TestIsForeignKeyViolation(t *testing.T) {
	assert.True(t, IsForeignKeyViolation(fmt.Errorf("update: %w", &pq.Error{Code: "23503"})))
	assert.False(t, IsForeignKeyViolation(&pq.Error{Code: "23505"}))
}

func TestNullConverters(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, &id, FromNullUUID(ToNullUUID(&id)))
	assert.Nil(t, FromNullUUID(ToNullUUID(nil)))

	n := 7
	assert.Equal(t, &n, FromSqlInt32(ToSqlInt32(&n)))
	assert.Nil(t, FromSqlInt32(ToSqlInt32(nil)))
	assert.Nil(t, FromSqlTime(sql.NullTime{}))
}
