package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"teamhub/pkg/domain"
	"teamhub/pkg/store"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200
)

// Dashboard gathers workflow counters for administrators.
func (a *App) Dashboard(ctx context.Context, actor domain.User) (domain.DashboardStats, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.DashboardStats{}, err
	}
	var stats domain.DashboardStats
	active, inactive := true, false
	g, gctx := errgroup.WithContext(ctx)
	countUsers := func(dst *int, filter store.UserFilter) {
		g.Go(func() error {
			n, err := a.store.CountUsers(gctx, filter)
			*dst = n
			return err
		})
	}
	countDocs := func(dst *int, status domain.ReviewStatus) {
		g.Go(func() error {
			n, err := a.store.CountDocuments(gctx, store.DocumentFilter{Status: status})
			*dst = n
			return err
		})
	}
	countUsers(&stats.TotalStudents, store.UserFilter{Role: domain.RoleStudent})
	countUsers(&stats.ActiveStudents, store.UserFilter{Role: domain.RoleStudent, Active: &active})
	countUsers(&stats.PendingStudents, store.UserFilter{Role: domain.RoleStudent, Active: &inactive})
	g.Go(func() error {
		n, err := a.store.CountTeams(gctx)
		stats.TotalTeams = n
		return err
	})
	g.Go(func() error {
		n, err := a.store.CountTeamsWithTheme(gctx)
		stats.TeamsWithTheme = n
		return err
	})
	g.Go(func() error {
		n, err := a.store.CountSubThemes(gctx, domain.ReviewPending)
		stats.PendingSubThemes = n
		return err
	})
	countDocs(&stats.TotalDocuments, "")
	countDocs(&stats.PendingDocuments, domain.ReviewPending)
	countDocs(&stats.ApprovedDocuments, domain.ReviewApproved)
	countDocs(&stats.RejectedDocuments, domain.ReviewRejected)
	if err := g.Wait(); err != nil {
		return domain.DashboardStats{}, fmt.Errorf("dashboard counts: %w", err)
	}
	return stats, nil
}

// Activity returns the most recent audit entries. limit <= 0 selects the
// default; larger values are capped.
func (a *App) Activity(ctx context.Context, actor domain.User, limit int) ([]domain.Activity, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}
	entries, err := a.store.ListActivity(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return entries, nil
}
