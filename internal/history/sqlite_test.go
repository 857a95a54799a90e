package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestSink(t *testing.T) (*SQLiteSink, string) {
	t.Helper()
	dir := t.TempDir()
	sink, err := NewSQLiteSink(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })
	return sink, dir
}

func TestSQLiteSinkRoundTrip(t *testing.T) {
	sink, _ := newTestSink(t)

	started := time.Date(2025, 6, 1, 9, 30, 0, 123456789, time.UTC)
	sess := Session{
		ID:        "roundtrip",
		StartedAt: started,
		Messages: []Message{
			{Speaker: SpeakerUser, Content: "[To Tech] hello", Timestamp: started.Add(time.Second)},
			{Speaker: "Tech", Content: "hi back", Timestamp: started.Add(2*time.Second + 42)},
		},
	}
	require.NoError(t, sink.Persist(sess))

	got, ok, err := sink.Load("roundtrip")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sess.StartedAt.UnixNano(), got.StartedAt.UnixNano())
	require.Len(t, got.Messages, 2)
	require.Equal(t, "Tech", got.Messages[1].Speaker)
	// nanosecond identity survives the round trip
	require.Equal(t, sess.Messages[1].Timestamp.UnixNano(), got.Messages[1].Timestamp.UnixNano())
}

func TestSQLiteSinkPersistReplacesPreviousCopy(t *testing.T) {
	sink, _ := newTestSink(t)
	now := time.Now()

	sess := Session{ID: "s", StartedAt: now, Messages: []Message{
		{Speaker: SpeakerUser, Content: "one", Timestamp: now},
	}}
	require.NoError(t, sink.Persist(sess))

	sess.Messages = []Message{
		{Speaker: SpeakerUser, Content: "only", Timestamp: now.Add(time.Second)},
	}
	require.NoError(t, sink.Persist(sess))

	got, ok, err := sink.Load("s")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Messages, 1)
	require.Equal(t, "only", got.Messages[0].Content)
}

func TestSQLiteSinkLoadAbsent(t *testing.T) {
	sink, _ := newTestSink(t)

	_, ok, err := sink.Load("nope")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSQLiteSinkWritesTranscript(t *testing.T) {
	sink, dir := newTestSink(t)
	now := time.Now()

	require.NoError(t, sink.Persist(Session{ID: "talk", StartedAt: now, Messages: []Message{
		{Speaker: "Tech", Content: "an answer", Timestamp: now},
	}}))

	data, err := os.ReadFile(filepath.Join(dir, "talk.log"))
	require.NoError(t, err)
	require.Contains(t, string(data), "Tech: an answer")
}

func TestNewSQLiteSinkRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.db")
	require.NoError(t, os.WriteFile(path, []byte("not a database"), 0o644))

	_, err := NewSQLiteSink(path)
	require.Error(t, err)
}
