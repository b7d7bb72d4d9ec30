package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/wasteloop/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestHashedPhoneIsStableAndOpaque(t *testing.T) {
	a := HashedPhone("+62 811 000")
	b := HashedPhone(" +62 811 000 ")
	assert.Equal(t, a.String, b.String)
	assert.Len(t, a.String, 16)
	assert.NotContains(t, a.String, "811")
	assert.Equal(t, "", HashedPhone("").String)
}

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithActor(ctx, "user", "42")

	WithContext(ctx, zap.New(core)).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, "user", fields["actor_type"])
		assert.Equal(t, "42", fields["actor_id"])
	}
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "INSERT", operationFromSQL(`INSERT INTO "waste_ledger_entries" ...`))
	assert.Equal(t, "SELECT", operationFromSQL(`WITH x AS (SELECT 1) SELECT * FROM x`))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}
