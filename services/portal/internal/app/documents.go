package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"teamhub/pkg/domain"
	"teamhub/pkg/storage"
	"teamhub/pkg/store"
)

const maxCommentRunes = 2000

// SubmitDocument stores a file for the actor's team and opens it for review.
// Exactly DocumentMaxBytes is accepted; one byte more is not.
func (a *App) SubmitDocument(ctx context.Context, actor domain.User, filename string, data []byte) (domain.Document, error) {
	if actor.TeamID == nil {
		return domain.Document{}, ErrNoTeam
	}
	name := baseFilename(filename)
	ext := strings.ToLower(path.Ext(name))
	if _, ok := a.documentExtensions[ext]; !ok {
		return domain.Document{}, ErrInvalidExtension
	}
	if int64(len(data)) > a.documentMaxBytes {
		return domain.Document{}, ErrTooLarge
	}
	if len(data) == 0 {
		return domain.Document{}, ErrInvalidInput.WithMessage("file is empty")
	}
	teamID := *actor.TeamID
	if _, err := a.loadTeam(ctx, teamID); err != nil {
		return domain.Document{}, err
	}

	now := a.now().UTC()
	key := documentKey(teamID, now, name)
	pages := 0
	if ext == ".pdf" {
		pages = pdfPageCount(data)
	}
	if err := a.blobs.Put(ctx, key, bytes.NewReader(data), int64(len(data)), ContentTypeFor(ext)); err != nil {
		return domain.Document{}, fmt.Errorf("store document: %w", err)
	}
	uploader := actor.ID
	doc, err := a.store.CreateDocument(ctx, domain.Document{
		TeamID:     teamID,
		Filename:   name,
		StorageKey: key,
		UploadedBy: &uploader,
		Status:     domain.ReviewPending,
		SizeBytes:  int64(len(data)),
		PageCount:  pages,
		UploadedAt: now,
	})
	if err != nil {
		a.deleteBlob(ctx, key)
		return domain.Document{}, fmt.Errorf("create document: %w", err)
	}
	doc.UploaderName = actor.FullName
	a.record(ctx, &actor, "document.submit", documentSubject(doc.ID), map[string]any{
		"teamId":   teamID,
		"filename": name,
		"size":     doc.SizeBytes,
	})
	return doc, nil
}

// ReviewDocument records an admin decision. Reviewing again overwrites the
// previous decision and comment.
func (a *App) ReviewDocument(ctx context.Context, actor domain.User, docID int64, decision domain.ReviewStatus, comment *string) (domain.Document, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.Document{}, err
	}
	if !decision.IsDecision() {
		return domain.Document{}, ErrInvalidDecision
	}
	if comment != nil {
		trimmed := strings.TrimSpace(*comment)
		if len([]rune(trimmed)) > maxCommentRunes {
			return domain.Document{}, ErrInvalidInput.WithMessage("comment is too long")
		}
		comment = &trimmed
		if trimmed == "" {
			comment = nil
		}
	}
	doc, err := a.store.ReviewDocument(ctx, docID, decision, comment)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Document{}, ErrDocumentNotFound
		}
		return domain.Document{}, fmt.Errorf("review document: %w", err)
	}
	a.record(ctx, &actor, "document.review", documentSubject(doc.ID), map[string]any{"decision": string(decision)})
	return doc, nil
}

// ListTeamDocuments returns a team's documents, newest first. Students only
// see their own team.
func (a *App) ListTeamDocuments(ctx context.Context, actor domain.User, teamID int64) ([]domain.Document, error) {
	if !canAccessTeam(actor, teamID) {
		return nil, ErrForbidden
	}
	docs, err := a.store.ListDocuments(ctx, store.DocumentFilter{TeamID: &teamID})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// MyDocuments returns the documents of the actor's team, or none without a team.
func (a *App) MyDocuments(ctx context.Context, actor domain.User) ([]domain.Document, error) {
	if actor.TeamID == nil {
		return []domain.Document{}, nil
	}
	return a.ListTeamDocuments(ctx, actor, *actor.TeamID)
}

// PendingDocuments returns every document awaiting review.
func (a *App) PendingDocuments(ctx context.Context, actor domain.User) ([]domain.Document, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	docs, err := a.store.ListDocuments(ctx, store.DocumentFilter{Status: domain.ReviewPending})
	if err != nil {
		return nil, fmt.Errorf("list pending documents: %w", err)
	}
	return docs, nil
}

// DownloadDocument opens a document's bytes. The caller closes the reader.
// A record whose blob has vanished yields ErrBlobMissing.
func (a *App) DownloadDocument(ctx context.Context, actor domain.User, docID int64) (domain.Document, io.ReadCloser, error) {
	doc, ok, err := a.store.GetDocument(ctx, docID)
	if err != nil {
		return domain.Document{}, nil, fmt.Errorf("load document: %w", err)
	}
	if !ok {
		return domain.Document{}, nil, ErrDocumentNotFound
	}
	if !canAccessTeam(actor, doc.TeamID) {
		return domain.Document{}, nil, ErrForbidden
	}
	rc, err := a.blobs.Get(ctx, doc.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return domain.Document{}, nil, ErrBlobMissing
		}
		return domain.Document{}, nil, fmt.Errorf("open document: %w", err)
	}
	return doc, rc, nil
}
