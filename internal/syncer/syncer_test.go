package syncer_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/corville/confsync/internal/journal"
	"github.com/corville/confsync/internal/storage"
	"github.com/corville/confsync/internal/syncer"
	"github.com/corville/confsync/internal/syncerr"
	"github.com/corville/confsync/internal/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSyncer(store storage.Provider, fake *testutil.FakeConfluence, jrnl journal.Journal, opts syncer.Options) *syncer.Syncer {
	if opts.DefaultSpaceKey == "" {
		opts.DefaultSpaceKey = "DOCS"
	}
	return syncer.New(store, fake.Client(), jrnl, opts, testLogger())
}

func listDocs(t *testing.T, store storage.Provider) []storage.DocInfo {
	t.Helper()
	docs, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	return docs
}

func TestSyncFile_NoMetadataCreatesPage(t *testing.T) {
	dir, store := testutil.TestDocs(t)
	testutil.WriteDoc(t, dir, "setup-guide.md", "# Setup\n\nInstall things.")
	fake := testutil.NewFakeConfluence(t)
	s := newSyncer(store, fake, nil, syncer.Options{})

	out, err := s.SyncFile(context.Background(), listDocs(t, store)[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Result != journal.OutcomeCreated {
		t.Errorf("result = %q, want created", out.Result)
	}
	if fake.CreateCalls != 1 || fake.UpdateCalls != 0 {
		t.Errorf("create=%d update=%d, want 1/0", fake.CreateCalls, fake.UpdateCalls)
	}

	p := fake.Page(out.PageID)
	if p == nil {
		t.Fatal("page not created")
	}
	// Title falls back to the filename stem; space to the run default.
	if p.Title != "setup-guide" {
		t.Errorf("title = %q, want setup-guide", p.Title)
	}
	if p.SpaceKey != "DOCS" {
		t.Errorf("space = %q, want DOCS", p.SpaceKey)
	}
}

func TestSyncFile_ExplicitPageIDUpdates(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	id := fake.AddPage("ENG", "Old Title", "<p>old</p>")

	dir, store := testutil.TestDocs(t)
	testutil.WriteDoc(t, dir, "doc.md",
		"---\nconfluence_page_id: "+id+"\nconfluence_title: New Title\n---\n# Fresh\n")
	s := newSyncer(store, fake, nil, syncer.Options{})

	out, err := s.SyncFile(context.Background(), listDocs(t, store)[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Result != journal.OutcomeUpdated || out.PageID != id {
		t.Errorf("outcome = %+v", out)
	}
	p := fake.Page(id)
	if p.Title != "New Title" || p.Version != 2 {
		t.Errorf("page = %+v, want updated title at version 2", p)
	}
	if fake.CreateCalls != 0 {
		t.Errorf("create calls = %d, want 0", fake.CreateCalls)
	}
}

func TestSyncFile_MetadataOverridesSpaceAndParent(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	dir, store := testutil.TestDocs(t)
	testutil.WriteDoc(t, dir, "doc.md",
		"---\nconfluence_space_key: OPS\nconfluence_parent_id: 77\n---\nBody.")
	s := newSyncer(store, fake, nil, syncer.Options{DefaultSpaceKey: "DOCS", DefaultParentID: "1"})

	out, err := s.SyncFile(context.Background(), listDocs(t, store)[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := fake.Page(out.PageID)
	if p.SpaceKey != "OPS" || p.ParentID != "77" {
		t.Errorf("page = %+v, want space OPS under parent 77", p)
	}
}

func TestSyncFile_TitleSearchFallbackUpdates(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	id := fake.AddPage("DOCS", "runbook", "<p>stale</p>")

	dir, store := testutil.TestDocs(t)
	testutil.WriteDoc(t, dir, "runbook.md", "# Runbook\n\nUpdated.")
	s := newSyncer(store, fake, nil, syncer.Options{})

	out, err := s.SyncFile(context.Background(), listDocs(t, store)[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Result != journal.OutcomeUpdated || out.PageID != id {
		t.Errorf("outcome = %+v, want update of existing page %s", out, id)
	}
	if fake.CreateCalls != 0 {
		t.Errorf("create calls = %d, want 0 (title match should update)", fake.CreateCalls)
	}
}

func TestSyncFile_StalePageIDNotFound(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	dir, store := testutil.TestDocs(t)
	testutil.WriteDoc(t, dir, "doc.md", "---\nconfluence_page_id: 424242\n---\nBody.")
	s := newSyncer(store, fake, nil, syncer.Options{})

	_, err := s.SyncFile(context.Background(), listDocs(t, store)[0])
	if !errors.Is(err, syncerr.ErrRemoteNotFound) {
		t.Errorf("error = %v, want ErrRemoteNotFound", err)
	}
	var fe *syncerr.FileError
	if !errors.As(err, &fe) || fe.Path != "doc.md" {
		t.Errorf("error should carry the file path: %v", err)
	}
}

func TestSyncFile_ConflictRetriesOnce(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	id := fake.AddPage("ENG", "T", "<p>x</p>")

	dir, store := testutil.TestDocs(t)
	testutil.WriteDoc(t, dir, "doc.md", "---\nconfluence_page_id: "+id+"\n---\nBody.")
	s := newSyncer(store, fake, nil, syncer.Options{})

	fake.ConflictsLeft = 1
	if _, err := s.SyncFile(context.Background(), listDocs(t, store)[0]); err != nil {
		t.Fatalf("one conflict should be retried away: %v", err)
	}
	if fake.UpdateCalls != 2 {
		t.Errorf("update calls = %d, want 2 (original + retry)", fake.UpdateCalls)
	}
}

func TestSyncFile_SecondConflictFails(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	id := fake.AddPage("ENG", "T", "<p>x</p>")

	dir, store := testutil.TestDocs(t)
	testutil.WriteDoc(t, dir, "doc.md", "---\nconfluence_page_id: "+id+"\n---\nBody.")
	s := newSyncer(store, fake, nil, syncer.Options{})

	fake.ConflictsLeft = 2
	_, err := s.SyncFile(context.Background(), listDocs(t, store)[0])
	if !errors.Is(err, syncerr.ErrRemoteConflict) {
		t.Errorf("error = %v, want ErrRemoteConflict after single retry", err)
	}
}

func TestSyncFile_UploadsLocalImages(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	dir, store := testutil.TestDocs(t)
	testutil.WriteDoc(t, dir, "guide/doc.md", "# Doc\n\n![arch](images/arch.png)")
	if err := os.MkdirAll(filepath.Join(dir, "guide", "images"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "guide", "images", "arch.png"), []byte{0x89, 0x50}, 0o644); err != nil {
		t.Fatal(err)
	}
	s := newSyncer(store, fake, nil, syncer.Options{})

	out, err := s.SyncFile(context.Background(), listDocs(t, store)[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	atts := fake.Attachments(out.PageID)
	if len(atts) != 1 || atts[0] != "arch.png" {
		t.Errorf("attachments = %v, want [arch.png]", atts)
	}
}

func TestSyncFile_MissingImageDoesNotFail(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	dir, store := testutil.TestDocs(t)
	testutil.WriteDoc(t, dir, "doc.md", "![gone](images/missing.png)")
	s := newSyncer(store, fake, nil, syncer.Options{})

	out, err := s.SyncFile(context.Background(), listDocs(t, store)[0])
	if err != nil {
		t.Fatalf("missing image must not fail the document: %v", err)
	}
	if len(fake.Attachments(out.PageID)) != 0 {
		t.Errorf("no attachment should have been uploaded")
	}
}

func TestRun_PerFileFailureDoesNotAbortBatch(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	dir, store := testutil.TestDocs(t)
	testutil.WriteDoc(t, dir, "a-bad.md", "---\nconfluence_page_id: 999999\n---\nBody.")
	testutil.WriteDoc(t, dir, "b-good.md", "# Good\n\nFine.")
	s := newSyncer(store, fake, nil, syncer.Options{})

	report, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if report.Failed != 1 || report.Synced != 1 {
		t.Errorf("report = %+v, want 1 failed / 1 synced", report)
	}
	if report.Ok() {
		t.Error("report with failures must not be Ok")
	}
}

func TestRun_MalformedHeaderFailsThatFileOnly(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	dir, store := testutil.TestDocs(t)
	testutil.WriteDoc(t, dir, "a-broken.md", "---\n: bad: yaml: {{{\n---\nBody.")
	testutil.WriteDoc(t, dir, "b-fine.md", "Body.")
	s := newSyncer(store, fake, nil, syncer.Options{})

	report, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if report.Failed != 1 || report.Synced != 1 {
		t.Errorf("report = %+v, want 1 failed / 1 synced", report)
	}
}

func TestRun_JournalSkipsUnchanged(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	dir, store := testutil.TestDocs(t)
	testutil.WriteDoc(t, dir, "doc.md", "# Doc\n\nBody.")

	jrnl, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer jrnl.Close()

	s := newSyncer(store, fake, jrnl, syncer.Options{})

	first, err := s.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if first.Synced != 1 {
		t.Fatalf("first run = %+v, want 1 synced", first)
	}

	second, err := s.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if second.Skipped != 1 || second.Synced != 0 {
		t.Errorf("second run = %+v, want 1 skipped", second)
	}

	// Changed content must sync again.
	testutil.WriteDoc(t, dir, "doc.md", "# Doc\n\nChanged body.")
	third, err := s.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if third.Synced != 1 {
		t.Errorf("third run = %+v, want 1 synced after change", third)
	}
}

func TestRun_ForceBypassesSkip(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	dir, store := testutil.TestDocs(t)
	testutil.WriteDoc(t, dir, "doc.md", "# Doc\n\nBody.")

	jrnl, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer jrnl.Close()

	s := newSyncer(store, fake, jrnl, syncer.Options{})
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	forced := newSyncer(store, fake, jrnl, syncer.Options{Force: true})
	report, err := forced.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Synced != 1 || report.Skipped != 0 {
		t.Errorf("forced run = %+v, want 1 synced", report)
	}
}
