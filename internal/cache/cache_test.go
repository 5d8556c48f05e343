package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sriramvarun3/Memori/auth"
)

var testTime = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir(), WithClock(func() time.Time { return testTime }))
	require.NoError(t, err)
	return m
}

func TestNewManager_createsDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "cache")
	_, err := NewManager(dir)
	require.NoError(t, err)
	fi, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestManager_credential(t *testing.T) {
	ctx := t.Context()
	t.Run("empty store", func(t *testing.T) {
		m := testManager(t)
		_, err := m.Token(ctx)
		assert.ErrorIs(t, err, auth.ErrNoCredential)
	})
	t.Run("roundtrip", func(t *testing.T) {
		m := testManager(t)
		cred := auth.Credential{
			AccessToken:  "at-123",
			RefreshToken: "rt-456",
			ExpiresAt:    testTime.Add(time.Hour),
		}
		require.NoError(t, m.Set(ctx, cred))
		got, err := m.Credential(ctx)
		require.NoError(t, err)
		assert.Equal(t, cred.AccessToken, got.AccessToken)
		assert.Equal(t, cred.RefreshToken, got.RefreshToken)

		tok, err := m.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "at-123", tok)
	})
	t.Run("expiry margin", func(t *testing.T) {
		m := testManager(t)
		// 30s left is within the 60s margin, treated as expired.
		require.NoError(t, m.Set(ctx, auth.Credential{
			AccessToken: "at-soon",
			ExpiresAt:   testTime.Add(30 * time.Second),
		}))
		_, err := m.Token(ctx)
		assert.ErrorIs(t, err, auth.ErrNoCredential)

		require.NoError(t, m.Set(ctx, auth.Credential{
			AccessToken: "at-ok",
			ExpiresAt:   testTime.Add(61 * time.Second),
		}))
		tok, err := m.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "at-ok", tok)
	})
	t.Run("clear", func(t *testing.T) {
		m := testManager(t)
		require.NoError(t, m.Set(ctx, auth.Credential{AccessToken: "at"}))
		require.NoError(t, m.Clear(ctx))
		_, err := m.Token(ctx)
		assert.ErrorIs(t, err, auth.ErrNoCredential)
		// clearing an empty store is fine.
		assert.NoError(t, m.Clear(ctx))
	})
	t.Run("file permissions", func(t *testing.T) {
		m := testManager(t)
		require.NoError(t, m.Set(ctx, auth.Credential{AccessToken: "at"}))
		fi, err := os.Stat(filepath.Join(m.Dir(), credsFile))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), fi.Mode().Perm())
	})
}

func TestManager_memories(t *testing.T) {
	t.Run("empty text rejected", func(t *testing.T) {
		m := testManager(t)
		_, err := m.SaveMemory("   ", MemoryUser, 0)
		assert.ErrorIs(t, err, ErrEmptyText)
	})
	t.Run("defaults", func(t *testing.T) {
		m := testManager(t)
		mem, err := m.SaveMemory("remember this", "", 0)
		require.NoError(t, err)
		assert.Equal(t, MemoryUser, mem.Type)
		assert.NotEmpty(t, mem.ID)
		assert.Equal(t, testTime, mem.Timestamp)
	})
	t.Run("newest first", func(t *testing.T) {
		m := testManager(t)
		_, err := m.SaveMemory("first", MemoryUser, 0)
		require.NoError(t, err)
		_, err = m.SaveMemory("second", MemoryUser, 0)
		require.NoError(t, err)
		mm, err := m.Memories()
		require.NoError(t, err)
		require.Len(t, mm, 2)
		assert.Equal(t, "second", mm[0].Text)
		assert.Equal(t, "first", mm[1].Text)
	})
	t.Run("overall cap", func(t *testing.T) {
		m := testManager(t)
		for i := 0; i < MaxMemories+5; i++ {
			_, err := m.SaveMemory(fmt.Sprintf("memory %d", i), MemoryUser, 0)
			require.NoError(t, err)
		}
		mm, err := m.Memories()
		require.NoError(t, err)
		require.Len(t, mm, MaxMemories)
		// oldest entries are the ones dropped.
		assert.Equal(t, fmt.Sprintf("memory %d", MaxMemories+4), mm[0].Text)
		assert.Equal(t, "memory 5", mm[len(mm)-1].Text)
	})
	t.Run("chat export cap", func(t *testing.T) {
		m := testManager(t)
		_, err := m.SaveMemory("keep me", MemoryUser, 0)
		require.NoError(t, err)
		for i := 0; i < MaxChatExports+3; i++ {
			_, err := m.SaveMemory(fmt.Sprintf("export %d", i), MemoryChatExport, i)
			require.NoError(t, err)
		}
		mm, err := m.Memories()
		require.NoError(t, err)
		var exports, users int
		for _, mem := range mm {
			switch mem.Type {
			case MemoryChatExport:
				exports++
			case MemoryUser:
				users++
			}
		}
		assert.Equal(t, MaxChatExports, exports)
		assert.Equal(t, 1, users, "capping exports must not evict other types")
	})
	t.Run("delete", func(t *testing.T) {
		m := testManager(t)
		mem, err := m.SaveMemory("to be deleted", MemoryUser, 0)
		require.NoError(t, err)
		_, err = m.SaveMemory("to stay", MemoryUser, 0)
		require.NoError(t, err)

		require.NoError(t, m.DeleteMemory(mem.ID))
		mm, err := m.Memories()
		require.NoError(t, err)
		require.Len(t, mm, 1)
		assert.Equal(t, "to stay", mm[0].Text)

		// unknown id is a no-op.
		require.NoError(t, m.DeleteMemory("no-such-id"))
	})
}

func TestManager_handoffs(t *testing.T) {
	t.Run("roundtrip", func(t *testing.T) {
		m := testManager(t)
		h, err := m.SaveHandoff("Sprint planning", "we planned the sprint", 12)
		require.NoError(t, err)
		assert.Equal(t, "cli", h.Source)

		hh, err := m.Handoffs()
		require.NoError(t, err)
		require.Len(t, hh, 1)
		assert.Equal(t, "Sprint planning", hh[0].Title)
		assert.Equal(t, 12, hh[0].MessageCount)
	})
	t.Run("cap", func(t *testing.T) {
		m := testManager(t)
		for i := 0; i < MaxContextHandoffs+2; i++ {
			_, err := m.SaveHandoff(fmt.Sprintf("handoff %d", i), "content", 1)
			require.NoError(t, err)
		}
		hh, err := m.Handoffs()
		require.NoError(t, err)
		require.Len(t, hh, MaxContextHandoffs)
		assert.Equal(t, fmt.Sprintf("handoff %d", MaxContextHandoffs+1), hh[0].Title)
	})
	t.Run("delete", func(t *testing.T) {
		m := testManager(t)
		h, err := m.SaveHandoff("gone", "content", 1)
		require.NoError(t, err)
		require.NoError(t, m.DeleteHandoff(h.ID))
		hh, err := m.Handoffs()
		require.NoError(t, err)
		assert.Empty(t, hh)
	})
}

func TestManager_meetings(t *testing.T) {
	m := testManager(t)
	_, err := m.Meetings()
	assert.ErrorIs(t, err, ErrNotCached)

	require.NoError(t, m.SaveMeetings(nil))
	snap, err := m.Meetings()
	require.NoError(t, err)
	assert.Equal(t, testTime, snap.CachedAt)
	assert.Empty(t, snap.Meetings)
}

func TestStoreJSON_corruptFile(t *testing.T) {
	m := testManager(t)
	require.NoError(t, os.WriteFile(filepath.Join(m.Dir(), memoriesFile), []byte("{not json"), 0600))
	_, err := m.Memories()
	assert.Error(t, err)
}
