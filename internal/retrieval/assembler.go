// Package retrieval assembles the RAG context for a fill: it builds a query
// from the unmatched fields, searches the profile's vector index, and packs
// the hits into a token-bounded context block.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"fieldpilot/internal/classify"
	"fieldpilot/internal/embedding"
	"fieldpilot/internal/logging"
	"fieldpilot/internal/types"
	"fieldpilot/internal/vecindex"
)

const (
	// DefaultTokenBudget caps packed context, estimated at charsPerToken.
	DefaultTokenBudget = 1500

	// charsPerToken is the crude but serviceable token estimate.
	charsPerToken = 4

	// minTailTokens is the smallest truncated tail worth keeping. Below
	// this the partial entry is dropped instead.
	minTailTokens = 50

	// maxQueryFields bounds how many field specimens go into the query.
	maxQueryFields = 10

	ellipsisMarker = "..."
)

// RetrievedChunk is one packed context entry plus its provenance, kept for
// observability and debugging of retrieval quality.
type RetrievedChunk struct {
	SourceID   string             `json:"source_id"`
	Source     types.VectorSource `json:"source"`
	Similarity float64            `json:"similarity"`
	Text       string             `json:"text"`
	Truncated  bool               `json:"truncated,omitempty"`
}

// Context is the assembled retrieval result.
type Context struct {
	Query  string
	Blocks []string
	Chunks []RetrievedChunk
}

// Assembler runs query building, vector search, and budget packing.
type Assembler struct {
	gateway     *embedding.Gateway
	index       *vecindex.Index
	topK        int
	threshold   float64
	tokenBudget int
}

// NewAssembler wires a retrieval assembler. Zero values select defaults
// (topK 5, threshold 0.5, budget 1500 tokens).
func NewAssembler(gateway *embedding.Gateway, index *vecindex.Index, topK int, threshold float64, tokenBudget int) *Assembler {
	if topK <= 0 {
		topK = 5
	}
	if threshold <= 0 {
		threshold = 0.5
	}
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}
	return &Assembler{
		gateway:     gateway,
		index:       index,
		topK:        topK,
		threshold:   threshold,
		tokenBudget: tokenBudget,
	}
}

// BuildQuery renders the search query: the form's domain plus up to ten
// representative unmatched, non-credential fields as "label (class)".
func BuildQuery(domain string, unmatched []types.FieldSignature) string {
	var parts []string
	for _, f := range unmatched {
		if classify.IsSensitive(f) {
			continue
		}
		label := f.Label
		if label == "" {
			label = string(f.Class)
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", label, f.Class))
		if len(parts) == maxQueryFields {
			break
		}
	}

	if domain == "" {
		return strings.Join(parts, ", ")
	}
	if len(parts) == 0 {
		return domain
	}
	return domain + ": " + strings.Join(parts, ", ")
}

// Assemble embeds the query, over-fetches 2x topK candidates, and greedily
// packs them into the token budget. A remote embedding failure propagates;
// an empty index or no hits is a valid empty context.
func (a *Assembler) Assemble(ctx context.Context, profileID, domain string, unmatched []types.FieldSignature) (*Context, error) {
	timer := logging.StartTimer(logging.CategoryRetrieve, "Assemble")
	defer timer.Stop()

	query := BuildQuery(domain, unmatched)
	if query == "" {
		return &Context{}, nil
	}

	queryVec, err := a.gateway.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed retrieval query: %w", err)
	}

	// Over-fetch so budget packing still fills the context when early
	// candidates are long.
	results, err := a.index.Search(profileID, queryVec, a.topK*2, a.threshold)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	out := &Context{Query: query}
	remaining := a.tokenBudget

	for _, r := range results {
		tokens := EstimateTokens(r.Entry.Text)
		switch {
		case tokens <= remaining:
			out.Blocks = append(out.Blocks, r.Entry.Text)
			out.Chunks = append(out.Chunks, RetrievedChunk{
				SourceID:   r.Entry.ID,
				Source:     r.Entry.Source,
				Similarity: r.Similarity,
				Text:       r.Entry.Text,
			})
			remaining -= tokens
			continue
		case remaining >= minTailTokens:
			// Truncate into the leftover budget, then stop packing.
			cut := remaining * charsPerToken
			if cut > len(r.Entry.Text) {
				cut = len(r.Entry.Text)
			}
			// Back up to a rune boundary so multi-byte text is never
			// split mid-rune.
			for cut > 0 && cut < len(r.Entry.Text) && !utf8.RuneStart(r.Entry.Text[cut]) {
				cut--
			}
			text := r.Entry.Text[:cut] + ellipsisMarker
			out.Blocks = append(out.Blocks, text)
			out.Chunks = append(out.Chunks, RetrievedChunk{
				SourceID:   r.Entry.ID,
				Source:     r.Entry.Source,
				Similarity: r.Similarity,
				Text:       text,
				Truncated:  true,
			})
		}
		break
	}

	logging.Retrieve("assembled %d context blocks (%d candidates) for profile %s",
		len(out.Blocks), len(results), profileID)
	return out, nil
}

// EstimateTokens approximates token count at ~4 characters per token.
func EstimateTokens(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}
