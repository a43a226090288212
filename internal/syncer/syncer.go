// Package syncer decides, per document, whether to create or update the
// remote page, and drives the whole run over the docs directory.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/corville/confsync/internal/confluence"
	"github.com/corville/confsync/internal/converter"
	"github.com/corville/confsync/internal/frontmatter"
	"github.com/corville/confsync/internal/journal"
	"github.com/corville/confsync/internal/storage"
	"github.com/corville/confsync/internal/syncerr"
)

// API is the Confluence surface the reconciler consumes.
type API interface {
	GetPage(ctx context.Context, id string) (*confluence.Page, error)
	CreatePage(ctx context.Context, spaceKey, title, storage, parentID string) (*confluence.Page, error)
	UpdatePage(ctx context.Context, id string, version int, title, storage string) (*confluence.Page, error)
	FindPageByTitle(ctx context.Context, spaceKey, title string) (*confluence.Page, error)
	UploadAttachment(ctx context.Context, pageID, filename string, data []byte) error
	PageURL(p *confluence.Page) string
}

// Verify the concrete client satisfies API at compile time.
var _ API = (*confluence.Client)(nil)

// Options carries the run-wide defaults and switches.
type Options struct {
	DefaultSpaceKey string
	DefaultParentID string
	// Force disables the journal-based unchanged-file skip.
	Force bool
}

// Syncer runs Extract → Convert → reconcile for each document.
type Syncer struct {
	store   storage.Provider
	api     API
	journal journal.Journal // nil when no journal is configured
	opts    Options
	logger  *slog.Logger
}

// New creates a Syncer. jrnl may be nil.
func New(store storage.Provider, api API, jrnl journal.Journal, opts Options, logger *slog.Logger) *Syncer {
	return &Syncer{store: store, api: api, journal: jrnl, opts: opts, logger: logger}
}

// Outcome describes what happened to a single document.
type Outcome struct {
	Path   string
	PageID string
	Result string // journal.OutcomeCreated or journal.OutcomeUpdated
}

// Report aggregates a whole run.
type Report struct {
	Synced  int
	Failed  int
	Skipped int
}

// Ok reports whether the run finished without any per-file failure.
func (r *Report) Ok() bool { return r.Failed == 0 }

// Run processes every .md file under the docs root, strictly sequentially
// in discovery order. Per-file failures are logged and counted; only a
// failure to enumerate the docs directory aborts the run itself.
func (s *Syncer) Run(ctx context.Context) (*Report, error) {
	docs, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("discover documents: %w", err)
	}
	s.logger.Info("run started", slog.Int("documents", len(docs)))

	var runID int64
	if s.journal != nil {
		if runID, err = s.journal.BeginRun(time.Now()); err != nil {
			return nil, err
		}
	}

	report := &Report{}
	for _, doc := range docs {
		s.syncOne(ctx, doc, runID, report)
	}

	if s.journal != nil {
		if err := s.journal.FinishRun(runID, report.Synced, report.Failed, report.Skipped); err != nil {
			s.logger.Warn("journal finish failed", slog.String("error", err.Error()))
		}
	}

	s.logger.Info("run finished",
		slog.Int("synced", report.Synced),
		slog.Int("failed", report.Failed),
		slog.Int("skipped", report.Skipped))
	return report, nil
}

// syncOne handles one document end to end, including the skip check,
// logging, and journal bookkeeping.
func (s *Syncer) syncOne(ctx context.Context, doc storage.DocInfo, runID int64, report *Report) {
	if s.journal != nil && !s.opts.Force {
		last, err := s.journal.LastSyncedChecksum(doc.Path)
		if err != nil {
			s.logger.Warn("journal lookup failed", slog.String("path", doc.Path), slog.String("error", err.Error()))
		} else if last != "" && last == doc.Checksum {
			s.logger.Info("unchanged, skipped", slog.String("path", doc.Path))
			report.Skipped++
			s.record(runID, journal.FileRecord{Path: doc.Path, Checksum: doc.Checksum, Outcome: journal.OutcomeSkipped})
			return
		}
	}

	outcome, err := s.SyncFile(ctx, doc)
	if err != nil {
		report.Failed++
		s.logger.Error("sync failed",
			slog.String("path", doc.Path),
			slog.String("error", err.Error()))
		s.record(runID, journal.FileRecord{Path: doc.Path, Checksum: doc.Checksum, Outcome: journal.OutcomeFailed, Error: err.Error()})
		return
	}

	report.Synced++
	s.logger.Info("synced",
		slog.String("path", doc.Path),
		slog.String("result", outcome.Result),
		slog.String("page_id", outcome.PageID))
	s.record(runID, journal.FileRecord{Path: doc.Path, Checksum: doc.Checksum, Outcome: outcome.Result, PageID: outcome.PageID})
}

func (s *Syncer) record(runID int64, rec journal.FileRecord) {
	if s.journal == nil {
		return
	}
	if err := s.journal.RecordFile(runID, rec); err != nil {
		s.logger.Warn("journal record failed", slog.String("path", rec.Path), slog.String("error", err.Error()))
	}
}

// SyncFile runs Extract → Convert → reconcile for a single document and
// returns what happened. All errors are file-scoped.
func (s *Syncer) SyncFile(ctx context.Context, doc storage.DocInfo) (*Outcome, error) {
	data, err := s.store.Read(doc.Path)
	if err != nil {
		return nil, &syncerr.FileError{Path: doc.Path, Err: err}
	}

	parsed, err := frontmatter.Parse(data)
	if err != nil {
		return nil, &syncerr.FileError{Path: doc.Path, Err: err}
	}

	converted, err := converter.Convert(parsed.Body)
	if err != nil {
		return nil, &syncerr.FileError{Path: doc.Path, Err: err}
	}

	title := parsed.Meta.Title
	if title == "" {
		title = titleFromPath(doc.Path)
	}
	spaceKey := parsed.Meta.SpaceKey
	if spaceKey == "" {
		spaceKey = s.opts.DefaultSpaceKey
	}
	parentID := parsed.Meta.ParentID
	if parentID == "" {
		parentID = s.opts.DefaultParentID
	}

	outcome, err := s.reconcile(ctx, doc.Path, parsed.Meta.PageID, spaceKey, title, parentID, converted.Storage)
	if err != nil {
		return nil, &syncerr.FileError{Path: doc.Path, Err: err}
	}

	if len(converted.Attachments) > 0 {
		s.uploadAttachments(ctx, doc.Path, outcome.PageID, converted.Attachments)
	}
	return outcome, nil
}

// reconcile produces exactly one remote page reflecting the converted
// content. An explicit page ID always updates; otherwise a title search
// in the target space decides between update and create.
func (s *Syncer) reconcile(ctx context.Context, docPath, pageID, spaceKey, title, parentID, body string) (*Outcome, error) {
	if pageID != "" {
		if err := s.updateWithRetry(ctx, pageID, title, body); err != nil {
			return nil, err
		}
		return &Outcome{Path: docPath, PageID: pageID, Result: journal.OutcomeUpdated}, nil
	}

	existing, err := s.api.FindPageByTitle(ctx, spaceKey, title)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := s.updateWithRetry(ctx, existing.ID, title, body); err != nil {
			return nil, err
		}
		return &Outcome{Path: docPath, PageID: existing.ID, Result: journal.OutcomeUpdated}, nil
	}

	created, err := s.api.CreatePage(ctx, spaceKey, title, body, parentID)
	if err != nil {
		return nil, err
	}
	// The ID is surfaced for the operator to record in the frontmatter;
	// the source file is never rewritten.
	s.logger.Info("page created",
		slog.String("path", docPath),
		slog.String("page_id", created.ID),
		slog.String("url", s.api.PageURL(created)),
		slog.String("hint", "add 'confluence_page_id: "+created.ID+"' to the frontmatter"))
	return &Outcome{Path: docPath, PageID: created.ID, Result: journal.OutcomeCreated}, nil
}

// updateWithRetry fetches the current version, issues the update, and on
// a stale-version conflict retries exactly once with a fresh version.
func (s *Syncer) updateWithRetry(ctx context.Context, pageID, title, body string) error {
	current, err := s.api.GetPage(ctx, pageID)
	if err != nil {
		return err
	}
	_, err = s.api.UpdatePage(ctx, pageID, current.Version+1, title, body)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syncerr.ErrRemoteConflict) {
		return err
	}

	s.logger.Warn("version conflict, retrying with fresh version", slog.String("page_id", pageID))
	current, err = s.api.GetPage(ctx, pageID)
	if err != nil {
		return err
	}
	_, err = s.api.UpdatePage(ctx, pageID, current.Version+1, title, body)
	return err
}

// uploadAttachments resolves image paths relative to the document and
// uploads each one. A missing or unreadable image is logged and skipped;
// it does not fail the document.
func (s *Syncer) uploadAttachments(ctx context.Context, docPath, pageID string, attachments []string) {
	dir := path.Dir(docPath)
	for _, att := range attachments {
		rel := path.Clean(path.Join(dir, att))
		data, err := s.store.Read(rel)
		if err != nil {
			s.logger.Warn("attachment unreadable, skipped",
				slog.String("path", docPath),
				slog.String("image", att),
				slog.String("error", err.Error()))
			continue
		}
		if err := s.api.UploadAttachment(ctx, pageID, path.Base(att), data); err != nil {
			s.logger.Warn("attachment upload failed",
				slog.String("path", docPath),
				slog.String("image", att),
				slog.String("error", err.Error()))
		}
	}
}

// titleFromPath derives the fallback title from the file name, without
// directory or extension.
func titleFromPath(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, ".md")
}
