package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/discovery"
)

// ErrNoContactPage is returned by RunDiscovered when discovery yields no
// page scoring at least the minimum.
var ErrNoContactPage = errors.New("no contact page candidate")

// Discoverer ranks likely contact pages below a root URL.
type Discoverer interface {
	Discover(ctx context.Context, rootURL string) ([]schemas.DiscoveryResult, error)
}

// RunDiscovered finds contact pages under rootURL and submits payload to
// them best first, stopping at the first result that is not a fail. The
// last result is returned when every candidate fails.
func (s *Submitter) RunDiscovered(ctx context.Context, rootURL string, payload schemas.Payload) (schemas.Result, error) {
	if s.discovery == nil {
		return schemas.Result{}, errors.New("discovery is not configured")
	}
	found, err := s.discovery.Discover(ctx, rootURL)
	if err != nil {
		return schemas.Result{}, fmt.Errorf("discovery failed for %s: %w", rootURL, err)
	}

	pages := discovery.FilterByScore(found, s.minScore)
	if len(pages) == 0 {
		return schemas.Result{}, fmt.Errorf("%w: %s", ErrNoContactPage, rootURL)
	}
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Score > pages[j].Score })

	var res schemas.Result
	for _, p := range pages {
		res = s.Submit(ctx, schemas.Request{URL: p.URL, Payload: payload})
		s.logger.Info("Discovered page attempted.",
			zap.String("root", rootURL),
			zap.String("url", p.URL),
			zap.Int("score", p.Score),
			zap.String("status", string(res.Status)))
		if res.Status == schemas.StatusSuccess || res.Status == schemas.StatusMaybe {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	return res, nil
}
