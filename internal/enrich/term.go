package enrich

import (
	"context"
	"strings"

	"github.com/guokai8/pathwaydb/api"
	"github.com/guokai8/pathwaydb/internal/apperrors"
	lru "github.com/hashicorp/golang-lru/v2"
)

// TermClient looks up single GO terms, remembering recent answers.
type TermClient struct {
	tier  *QuickGOTier
	cache *lru.Cache[string, api.Term]
}

// NewTermClient wraps a QuickGO tier with an LRU of the given size.
func NewTermClient(tier *QuickGOTier, size int) (*TermClient, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[string, api.Term](size)
	if err != nil {
		return nil, err
	}
	return &TermClient{tier: tier, cache: c}, nil
}

// GetTerm returns the term with id, or an ErrNotFound error when the service
// has no such term.
func (c *TermClient) GetTerm(ctx context.Context, id string) (api.Term, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return api.Term{}, apperrors.Newf("enrich.get_term", apperrors.ErrConfiguration, "empty term id")
	}
	if t, ok := c.cache.Get(id); ok {
		return t, nil
	}
	terms, err := c.tier.lookup(ctx, []string{id})
	if err != nil {
		if apperrors.IsNotFound(err) {
			return api.Term{}, apperrors.Newf("enrich.get_term", apperrors.ErrNotFound, "term %s", id)
		}
		return api.Term{}, err
	}
	for _, t := range terms {
		if t.ID == id {
			c.cache.Add(id, t)
			return t, nil
		}
	}
	return api.Term{}, apperrors.Newf("enrich.get_term", apperrors.ErrNotFound, "term %s", id)
}
