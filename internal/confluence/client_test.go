package confluence_test

import (
	"context"
	"errors"
	"testing"

	"github.com/corville/confsync/internal/confluence"
	"github.com/corville/confsync/internal/syncerr"
	"github.com/corville/confsync/internal/testutil"
)

func TestGetPage(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	id := fake.AddPage("ENG", "Runbook", "<p>body</p>")

	p, err := fake.Client().GetPage(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != id || p.Title != "Runbook" || p.Version != 1 {
		t.Errorf("page = %+v", p)
	}
	if p.SpaceKey != "ENG" {
		t.Errorf("space key = %q, want ENG", p.SpaceKey)
	}
}

func TestGetPage_NotFound(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)

	_, err := fake.Client().GetPage(context.Background(), "999999")
	if !errors.Is(err, syncerr.ErrRemoteNotFound) {
		t.Errorf("error = %v, want ErrRemoteNotFound", err)
	}
}

func TestCreatePage(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)

	p, err := fake.Client().CreatePage(context.Background(), "ENG", "New Page", "<p>hello</p>", "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID == "" {
		t.Fatal("expected assigned page ID")
	}
	stored := fake.Page(p.ID)
	if stored == nil {
		t.Fatal("page not stored")
	}
	if stored.SpaceKey != "ENG" || stored.Body != "<p>hello</p>" || stored.ParentID != "42" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestUpdatePage(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	id := fake.AddPage("ENG", "Old", "<p>old</p>")

	p, err := fake.Client().UpdatePage(context.Background(), id, 2, "New", "<p>new</p>")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Version != 2 {
		t.Errorf("version = %d, want 2", p.Version)
	}
	stored := fake.Page(id)
	if stored.Title != "New" || stored.Body != "<p>new</p>" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestUpdatePage_StaleVersionConflict(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	id := fake.AddPage("ENG", "Old", "<p>old</p>")

	_, err := fake.Client().UpdatePage(context.Background(), id, 7, "New", "<p>new</p>")
	if !errors.Is(err, syncerr.ErrRemoteConflict) {
		t.Errorf("error = %v, want ErrRemoteConflict", err)
	}
}

func TestFindPageByTitle(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	id := fake.AddPage("ENG", "Setup Guide", "<p>x</p>")
	fake.AddPage("OPS", "Setup Guide", "<p>y</p>")

	p, err := fake.Client().FindPageByTitle(context.Background(), "ENG", "Setup Guide")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || p.ID != id {
		t.Errorf("page = %+v, want ID %s", p, id)
	}

	miss, err := fake.Client().FindPageByTitle(context.Background(), "ENG", "No Such Page")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if miss != nil {
		t.Errorf("expected nil for missing page, got %+v", miss)
	}
}

func TestUploadAttachment_CreateThenUpdate(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	id := fake.AddPage("ENG", "Page", "<p>x</p>")
	c := fake.Client()

	if err := c.UploadAttachment(context.Background(), id, "arch.png", []byte{1, 2, 3}); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	// Same filename again: must update in place, not duplicate.
	if err := c.UploadAttachment(context.Background(), id, "arch.png", []byte{4, 5}); err != nil {
		t.Fatalf("second upload: %v", err)
	}
	atts := fake.Attachments(id)
	if len(atts) != 1 || atts[0] != "arch.png" {
		t.Errorf("attachments = %v, want [arch.png]", atts)
	}
}

func TestBadCredentialsUnavailable(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	id := fake.AddPage("ENG", "Page", "<p>x</p>")

	bad := confluence.NewClient(fake.Server.URL, "wrong", "creds")
	_, err := bad.GetPage(context.Background(), id)
	if !errors.Is(err, syncerr.ErrRemoteUnavailable) {
		t.Errorf("error = %v, want ErrRemoteUnavailable", err)
	}
}

func TestPageURL(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	id := fake.AddPage("ENG", "Page", "<p>x</p>")
	c := fake.Client()

	p, err := c.GetPage(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := fake.Server.URL + "/spaces/ENG/pages/" + id
	if got := c.PageURL(p); got != want {
		t.Errorf("url = %q, want %q", got, want)
	}
}
