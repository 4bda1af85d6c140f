package index_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pbellet/sessionlog/internal/index"
	"github.com/pbellet/sessionlog/internal/store"
	"github.com/pbellet/sessionlog/pkg/conversation"
)

func openTestIndex(t *testing.T) *index.Index {
	t.Helper()
	ix, err := index.Open(filepath.Join(t.TempDir(), "index.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func testMeta(id, title string, updated time.Time) conversation.Metadata {
	return conversation.Metadata{
		SessionID:    id,
		Title:        title,
		Created:      updated.Add(-time.Hour),
		Updated:      updated,
		MessageCount: 1,
	}
}

func testMessage(sessionID, uuid, content string) conversation.Message {
	return conversation.Message{
		UUID:      uuid,
		SessionID: sessionID,
		Type:      conversation.TypeUser,
		Payload:   conversation.TextPayload("user", content),
		Timestamp: time.Now(),
	}
}

func TestIndex_OpenIsIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "index.db")

	ix, err := index.Open(path, nil)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if err := ix.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening migrates against the existing schema without error.
	ix, err = index.Open(path, nil)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	_ = ix.Close()
}

func TestIndex_SearchMatchesContent(t *testing.T) {
	t.Parallel()
	ix := openTestIndex(t)
	now := time.Now()

	if err := ix.IndexSession(testMeta("s1", "deploy notes", now), []conversation.Message{
		testMessage("s1", "u1", "rolling out the kubernetes upgrade"),
	}); err != nil {
		t.Fatalf("IndexSession: %v", err)
	}
	if err := ix.IndexSession(testMeta("s2", "recipes", now.Add(time.Minute)), []conversation.Message{
		testMessage("s2", "u2", "sourdough starter care"),
	}); err != nil {
		t.Fatalf("IndexSession: %v", err)
	}

	got, err := ix.Search("kubernetes", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].SessionID != "s1" {
		t.Fatalf("Search(kubernetes) = %v, want [s1]", got)
	}
	if got[0].Title != "deploy notes" {
		t.Errorf("title = %q, want %q", got[0].Title, "deploy notes")
	}

	got, err = ix.Search("croissants", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Search(croissants) = %v, want no results", got)
	}
}

func TestIndex_SearchOrdersByUpdated(t *testing.T) {
	t.Parallel()
	ix := openTestIndex(t)
	now := time.Now()

	for i, id := range []string{"old", "mid", "new"} {
		meta := testMeta(id, id, now.Add(time.Duration(i)*time.Hour))
		msg := testMessage(id, "u-"+id, "shared keyword")
		if err := ix.IndexSession(meta, []conversation.Message{msg}); err != nil {
			t.Fatalf("IndexSession(%s): %v", id, err)
		}
	}

	got, err := ix.Search("shared", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []string{"new", "mid", "old"}
	if len(got) != len(want) {
		t.Fatalf("got %d results, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].SessionID != want[i] {
			t.Errorf("result %d = %s, want %s", i, got[i].SessionID, want[i])
		}
	}
}

func TestIndex_ReindexReplacesText(t *testing.T) {
	t.Parallel()
	ix := openTestIndex(t)
	now := time.Now()

	meta := testMeta("s1", "notes", now)
	if err := ix.IndexSession(meta, []conversation.Message{
		testMessage("s1", "u1", "original wording"),
	}); err != nil {
		t.Fatalf("IndexSession: %v", err)
	}
	if err := ix.IndexSession(meta, []conversation.Message{
		testMessage("s1", "u1", "rewritten wording"),
	}); err != nil {
		t.Fatalf("re-IndexSession: %v", err)
	}

	if got, _ := ix.Search("original", 10); len(got) != 0 {
		t.Errorf("stale text still matches after reindex")
	}
	if got, _ := ix.Search("rewritten", 10); len(got) != 1 {
		t.Errorf("new text does not match after reindex")
	}
}

func TestIndex_Remove(t *testing.T) {
	t.Parallel()
	ix := openTestIndex(t)

	if err := ix.IndexSession(testMeta("s1", "notes", time.Now()), []conversation.Message{
		testMessage("s1", "u1", "ephemeral content"),
	}); err != nil {
		t.Fatalf("IndexSession: %v", err)
	}
	if err := ix.Remove("s1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got, _ := ix.Search("ephemeral", 10); len(got) != 0 {
		t.Errorf("removed session still searchable")
	}

	// Removing an absent session is not an error.
	if err := ix.Remove("never-existed"); err != nil {
		t.Errorf("Remove(absent): %v", err)
	}
}

func TestIndex_RebuildFromStore(t *testing.T) {
	t.Parallel()
	ix := openTestIndex(t)
	st := store.New(t.TempDir(), nil)

	id, err := st.CreateSession("rebuild target")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	msg := testMessage(id, "u1", "a distinctly searchable phrase")
	if err := st.AppendMessage(id, msg); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	if err := ix.Rebuild(st); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	got, err := ix.Search("distinctly", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].SessionID != id {
		t.Errorf("rebuilt index does not find the stored session: %v", got)
	}
}
