// Package reconcile keeps the global form flags in line with the websites the
// identity broker still knows about.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Jeffreasy/KoruFormsService/internal/broker"
	"github.com/Jeffreasy/KoruFormsService/internal/metrics"
	"github.com/getsentry/sentry-go"
	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 8

// Forms is the bulk transition surface of the form engine.
type Forms interface {
	ActiveWebsites(ctx context.Context) ([]string, error)
	ApplyWebsiteValidity(ctx context.Context, websiteID string, valid bool) (int64, error)
}

// Websites looks a website up with app credentials.
type Websites interface {
	GetWebsite(ctx context.Context, websiteID, bearer string) (*broker.Website, error)
}

// Summary describes one run.
type Summary struct {
	SitesProcessed int           `json:"sites_processed"`
	SitesInvalid   int           `json:"sites_invalid"`
	Activated      int           `json:"forms_activated"`
	Deactivated    int           `json:"forms_deactivated"`
	StoreErrors    int           `json:"store_errors"`
	Duration       time.Duration `json:"duration_ns"`
}

type Reconciler struct {
	forms       Forms
	websites    Websites
	concurrency int
	logger      *slog.Logger
}

func New(forms Forms, websites Websites, concurrency int, logger *slog.Logger) *Reconciler {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{forms: forms, websites: websites, concurrency: concurrency, logger: logger}
}

// RunOnce revalidates every website that has forms and flips their flags.
// A failure on one website never stops the others. Running it twice with
// the same broker answers changes nothing the second time.
func (r *Reconciler) RunOnce(ctx context.Context) (Summary, error) {
	start := time.Now()

	sites, err := r.forms.ActiveWebsites(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("reconcile: load websites: %w", err)
	}

	var processed, invalid, activated, deactivated, storeErrs atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, site := range sites {
		g.Go(func() error {
			valid := r.check(gctx, site)
			if gctx.Err() != nil {
				// A lookup cut short by shutdown says nothing about the site.
				return nil
			}
			if !valid {
				invalid.Add(1)
			}
			n, err := r.forms.ApplyWebsiteValidity(gctx, site, valid)
			processed.Add(1)
			if err != nil {
				storeErrs.Add(1)
				r.logger.Error("reconcile_store_failed", "website_id", site, "error", err)
				sentry.WithScope(func(scope *sentry.Scope) {
					scope.SetTag("website_id", site)
					sentry.CaptureException(err)
				})
				return nil
			}
			if valid {
				activated.Add(n)
			} else {
				deactivated.Add(n)
			}
			return nil
		})
	}
	_ = g.Wait()

	sum := Summary{
		SitesProcessed: int(processed.Load()),
		SitesInvalid:   int(invalid.Load()),
		Activated:      int(activated.Load()),
		Deactivated:    int(deactivated.Load()),
		StoreErrors:    int(storeErrs.Load()),
		Duration:       time.Since(start),
	}
	metrics.ReconcileCompleted(sum.Activated, sum.Deactivated, sum.SitesInvalid, sum.Duration)
	r.logger.Info("reconcile_completed",
		"sites_processed", sum.SitesProcessed,
		"sites_invalid", sum.SitesInvalid,
		"forms_activated", sum.Activated,
		"forms_deactivated", sum.Deactivated,
		"store_errors", sum.StoreErrors,
		"duration", sum.Duration,
	)
	return sum, ctx.Err()
}

// check treats any successful lookup as valid. Network failures count as
// invalid too; the next run restores the site once the broker answers.
func (r *Reconciler) check(ctx context.Context, websiteID string) bool {
	_, err := r.websites.GetWebsite(ctx, websiteID, "")
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		r.logger.Warn("reconcile_site_invalid", "website_id", websiteID, "status", broker.StatusOf(err), "error", err)
		return false
	}
	return true
}
