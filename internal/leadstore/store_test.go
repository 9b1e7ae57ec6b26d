package leadstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/technosurge/leadflow/config"
	"github.com/technosurge/leadflow/types"
	"go.uber.org/zap"
)

type fakeRecorder struct {
	mu    sync.Mutex
	ops   []string
	saved []string
}

func (r *fakeRecorder) RecordLeadStoreOp(backend, operation string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, backend+"/"+operation)
}

func (r *fakeRecorder) RecordLeadSaved(backend, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, backend+"/"+status)
}

func TestInstrument_RecordsOperations(t *testing.T) {
	sqlStore, _ := setupSQLStore(t)
	rec := &fakeRecorder{}
	st := Instrument(sqlStore, rec)
	ctx := context.Background()

	assert.Equal(t, "database", st.Backend())
	require.NoError(t, st.Append(ctx, types.Lead{Name: "Ana", Email: "ana@example.com"}))

	got, err := st.FindByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.Name)

	require.NoError(t, st.UpdateStatus(ctx, "ana@example.com", types.LeadStatusSent))
	_, err = st.FindByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	leads, err := st.List(ctx)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, types.LeadStatusSent, leads[0].Status)

	assert.Equal(t, []string{
		"database/append",
		"database/find",
		"database/update_status",
		"database/find",
		"database/list",
	}, rec.ops)
	assert.Equal(t, []string{"database/ok"}, rec.saved)
}

func TestInstrument_FailedAppendCounted(t *testing.T) {
	sqlStore, _ := setupSQLStore(t)
	rec := &fakeRecorder{}
	st := Instrument(sqlStore, rec)
	ctx := context.Background()

	require.NoError(t, st.Append(ctx, types.Lead{ID: "same", Name: "A", Email: "a@x.io"}))
	// 主键冲突
	assert.Error(t, st.Append(ctx, types.Lead{ID: "same", Name: "B", Email: "b@x.io"}))
	assert.Equal(t, []string{"database/ok", "database/error"}, rec.saved)
}

func TestInstrument_NilRecorder(t *testing.T) {
	sqlStore, _ := setupSQLStore(t)
	st := Instrument(sqlStore, nil)
	require.NoError(t, st.Append(context.Background(), types.Lead{Name: "x"}))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("database requires db", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.LeadStore.Backend = "database"
		_, err := Open(ctx, cfg, nil, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("database", func(t *testing.T) {
		_, db := setupSQLStore(t)
		cfg := config.DefaultConfig()
		st, err := Open(ctx, cfg, db, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, "database", st.Backend())
	})

	t.Run("sheets requires spreadsheet id", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.LeadStore.Backend = "sheets"
		cfg.Sheets.SpreadsheetID = ""
		_, err := Open(ctx, cfg, nil, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.LeadStore.Backend = "csv"
		_, err := Open(ctx, cfg, nil, zap.NewNop())
		assert.ErrorContains(t, err, "csv")
	})
}
