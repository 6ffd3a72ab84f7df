package convlog

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T, cap int) *SQLiteLog {
	t.Helper()
	log, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"), cap)
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func TestSQLiteAppendLoad(t *testing.T) {
	log := openTestSQLite(t, 10)

	for i := 0; i < 3; i++ {
		require.NoError(t, log.Append(Record{
			Type:           "chat",
			ProviderID:     "anthropic",
			ModelAlias:     "claude-3.5-sonnet",
			RequestSummary: fmt.Sprintf("msg %d", i),
			ResponseText:   fmt.Sprintf("resp %d", i),
			RequestID:      fmt.Sprintf("req-%d", i),
		}))
	}

	records, err := log.Load(0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, r := range records {
		require.Equal(t, fmt.Sprintf("msg %d", i), r.RequestSummary)
		require.NotEmpty(t, r.Timestamp)
	}

	tail, err := log.Load(2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	require.Equal(t, "msg 1", tail[0].RequestSummary)
	require.Equal(t, "msg 2", tail[1].RequestSummary)
}

func TestSQLiteCompaction(t *testing.T) {
	log := openTestSQLite(t, 5)

	for i := 0; i < 8; i++ {
		require.NoError(t, log.Append(Record{
			Type: "chat", ProviderID: "blackbox", ModelAlias: "gpt-4",
			RequestSummary: fmt.Sprintf("msg %d", i), ResponseText: "r",
		}))
	}

	records, err := log.Load(0)
	require.NoError(t, err)
	require.Len(t, records, 5)
	require.Equal(t, "msg 3", records[0].RequestSummary)
	require.Equal(t, "msg 7", records[4].RequestSummary)
}

func TestSQLiteUsageRoundTrip(t *testing.T) {
	log := openTestSQLite(t, 10)
	require.NoError(t, log.Append(Record{
		Type: "pdf", ProviderID: "openai", ModelAlias: "gpt-4o",
		UpstreamModelID: "gpt-4o",
		RequestSummary:  "resume", ResponseText: "resumen",
		Usage: &UsageInfo{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
	}))

	records, err := log.Load(0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "gpt-4o", records[0].UpstreamModelID)
	require.NotNil(t, records[0].Usage)
	require.Equal(t, 120, records[0].Usage.TotalTokens)

	// Records without usage come back with a nil pointer, not zeroes.
	require.NoError(t, log.Append(Record{
		Type: "chat", ProviderID: "groq", ModelAlias: "llama-3.1-70b",
		RequestSummary: "hola", ResponseText: "hola!",
	}))
	records, err = log.Load(0)
	require.NoError(t, err)
	require.Nil(t, records[1].Usage)
}

func TestSQLiteCount(t *testing.T) {
	log := openTestSQLite(t, 10)

	n, err := log.Count()
	require.NoError(t, err)
	require.Zero(t, n)

	for i := 0; i < 4; i++ {
		require.NoError(t, log.Append(Record{
			Type: "chat", ProviderID: "blackbox", ModelAlias: "gpt-4",
			RequestSummary: fmt.Sprintf("msg %d", i), ResponseText: "r",
		}))
	}

	// Count reports the full log regardless of any Load limit.
	n, err = log.Count()
	require.NoError(t, err)
	require.Equal(t, 4, n)

	tail, err := log.Load(2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
}
