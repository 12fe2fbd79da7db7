package audit

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tariqlearnstocode/appchecker-sub001/app/models"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/database/dbtest"
)

func TestDBSinkRecord(t *testing.T) {
	db := dbtest.New(t)
	sink := NewDBSink(db)

	sink.Record(context.Background(), Record{
		Action:       ActionVerificationCancel,
		ResourceType: "verification",
		ResourceID:   ResourceIDFromUint(12),
		AccountID:    3,
		Metadata:     map[string]interface{}{"credit_refunded": true},
		IPAddress:    "203.0.113.9",
		UserAgent:    strings.Repeat("x", 300),
	})

	var row models.AuditLog
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, "12", row.ResourceID)
	assert.Equal(t, uint(3), row.AccountID)
	assert.Len(t, row.UserAgent, 255)

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(row.Metadata, &meta))
	assert.Equal(t, true, meta["credit_refunded"])
}

func TestDBSinkRecordMultibyteUserAgent(t *testing.T) {
	db := dbtest.New(t)
	NewDBSink(db).Record(context.Background(), Record{
		Action:       ActionVerificationCreate,
		ResourceType: "verification",
		ResourceID:   ResourceIDFromUint(7),
		AccountID:    1,
		UserAgent:    strings.Repeat("ü", 200),
	})

	var row models.AuditLog
	require.NoError(t, db.First(&row).Error)
	assert.True(t, utf8.ValidString(row.UserAgent))
	assert.Len(t, row.UserAgent, 254)
	assert.Equal(t, strings.Repeat("ü", 127), row.UserAgent)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc"},
		{"héllo", 2, "h"},
		{"日本語", 4, "日"},
		{"日本語", 6, "日本"},
		{"日", 2, ""},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		assert.Equal(t, tt.want, got, tt.in)
		assert.True(t, utf8.ValidString(got))
	}
}

func TestDBSinkSwallowsErrors(t *testing.T) {
	db := dbtest.New(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	NewDBSink(db).Record(context.Background(), Record{Action: ActionVerificationCancel})
}
