package pipeline

import (
	"context"

	"github.com/tessellate-ai/lorebase/internal/search"
)

// Result is one enriched search hit.
type Result struct {
	ID       string         `json:"id"`
	Document string         `json:"document"`
	Summary  string         `json:"summary"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

// QueryResponse is the facade's answer to one query.
type QueryResponse struct {
	Query    string          `json:"query"`
	Strategy search.Strategy `json:"strategy"`
	Degraded bool            `json:"degraded,omitempty"`
	Results  []Result        `json:"results"`
}

// Search runs one retrieval request and attaches a short summary to
// each hit so callers can render result lists without the full text.
func (p *Pipeline) Search(ctx context.Context, query string, opts search.Options) (*QueryResponse, error) {
	resp, err := p.retriever.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return p.enrich(resp), nil
}

// SearchByCharacter restricts the query to chunks mentioning name.
func (p *Pipeline) SearchByCharacter(ctx context.Context, name, query string, opts search.Options) (*QueryResponse, error) {
	resp, err := p.retriever.SearchByCharacter(ctx, name, query, opts)
	if err != nil {
		return nil, err
	}
	return p.enrich(resp), nil
}

// SearchByTheme retrieves passages about an abstract theme.
func (p *Pipeline) SearchByTheme(ctx context.Context, theme string, opts search.Options) (*QueryResponse, error) {
	resp, err := p.retriever.SearchByTheme(ctx, theme, opts)
	if err != nil {
		return nil, err
	}
	return p.enrich(resp), nil
}

func (p *Pipeline) enrich(resp *search.Response) *QueryResponse {
	out := &QueryResponse{
		Query:    resp.Query,
		Strategy: resp.Strategy,
		Degraded: resp.Degraded,
		Results:  make([]Result, len(resp.Results)),
	}
	for i, r := range resp.Results {
		out.Results[i] = Result{
			ID:       r.ID,
			Document: r.Document,
			Summary:  summarize(r.Document, p.cfg.SummaryRunes),
			Metadata: r.Metadata,
			Score:    r.Score,
		}
	}
	return out
}

// summarize truncates text to n runes, marking the cut with an
// ellipsis. Rune-based so CJK text is never split mid-character.
func summarize(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
