package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_relay/internal/models"
)

func TestStore_MissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nested", "state.json"))
	st, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "", st.LastProcessedMessageID)
	assert.NotNil(t, st.SeenSignalHashes)
}

func TestStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s := NewStore(path)
	in := &models.ProcessingState{
		LastProcessedMessageID: "1300000000000000001",
		LastTradeTimestamp:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		SeenSignalHashes:       []string{"a", "b"},
	}
	require.NoError(t, s.Save(in))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file is renamed away")

	out, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, in.LastProcessedMessageID, out.LastProcessedMessageID)
	assert.True(t, in.LastTradeTimestamp.Equal(out.LastTradeTimestamp))
	assert.Equal(t, in.SeenSignalHashes, out.SeenSignalHashes)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"last_processed_message_id"`)
	assert.Contains(t, string(raw), `"seen_signal_hashes"`)
	assert.Contains(t, string(raw), `"last_trade_timestamp"`)
}

func TestStore_Corrupt(t *testing.T) {
	for name, body := range map[string]string{
		"truncated":   `{"last_processed_message_id": "12`,
		"bad cursor":  `{"last_processed_message_id": "abc", "seen_signal_hashes": []}`,
		"wrong types": `{"seen_signal_hashes": 5}`,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.json")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

			st, err := NewStore(path).Load()
			assert.True(t, errors.Is(err, ErrStateCorrupt), "got %v", err)
			require.NotNil(t, st)
			assert.Equal(t, "", st.LastProcessedMessageID)
			assert.Empty(t, st.SeenSignalHashes)
		})
	}
}
