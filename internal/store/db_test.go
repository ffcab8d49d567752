package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRebind(t *testing.T) {
	pg := &DB{Driver: DriverPostgres}
	lite := &DB{Driver: DriverSQLite}
	q := `SELECT * FROM t WHERE a = $1 AND b = $2 LIMIT $10`

	assert.Equal(t, q, pg.Rebind(q))
	assert.Equal(t, `SELECT * FROM t WHERE a = ? AND b = ? LIMIT ?`, lite.Rebind(q))
}

func TestNilHandles(t *testing.T) {
	var db *DB
	assert.False(t, db.Healthy(context.Background()))
	assert.NoError(t, db.Close())

	var r *Redis
	assert.False(t, r.Healthy(context.Background()))
	assert.NoError(t, r.Close())
}
