// Package agent builds the prediction payload handed to the LLM layer. The
// LLM call itself lives outside this subsystem; this is the in-process seam
// it consumes.
package agent

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"chartsight/types"
)

// PredictionPayload is the retrieval output shaped for prompt construction:
// the target chart's four visual layers plus the neighbor evidence, with a
// token estimate for the rendered context.
type PredictionPayload struct {
	Target       *types.Analysis  `json:"target"`
	Neighbors    []types.Neighbor `json:"neighbors"`
	Context      string           `json:"context"`
	PromptTokens int              `json:"prompt_tokens"`
}

// BuildPayload renders the neighbor evidence into a prompt context and trims
// the lowest-similarity neighbors until the context fits maxTokens. The
// neighbor order (descending similarity) is preserved.
func BuildPayload(analysis *types.Analysis, maxTokens int) (*PredictionPayload, error) {
	neighbors := analysis.Neighbors

	for {
		context := renderContext(analysis, neighbors)
		tokens, err := CountTokens(context)
		if err != nil {
			return nil, fmt.Errorf("count prompt tokens: %w", err)
		}
		if maxTokens <= 0 || tokens <= maxTokens || len(neighbors) == 0 {
			return &PredictionPayload{
				Target:       analysis,
				Neighbors:    neighbors,
				Context:      context,
				PromptTokens: tokens,
			}, nil
		}
		neighbors = neighbors[:len(neighbors)-1]
	}
}

func renderContext(analysis *types.Analysis, neighbors []types.Neighbor) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Target chart %d layers: image=%s depth=%s edge=%s gradient=%s\n",
		analysis.ChartID, analysis.ImageURL, analysis.DepthURL, analysis.EdgeURL, analysis.GradientURL)

	if len(neighbors) == 0 {
		sb.WriteString("No similar historical charts found.\n")
		return sb.String()
	}

	sb.WriteString("Similar historical charts, most similar first:\n")
	for i, n := range neighbors {
		fmt.Fprintf(&sb, "%d. %s %s similarity=%.3f image=%s depth=%s edge=%s gradient=%s\n",
			i+1, n.Instrument, n.Timeframe, n.Similarity,
			n.ImageURL, n.DepthURL, n.EdgeURL, n.GradientURL)
	}
	return sb.String()
}

// CountTokens estimates the token count of text with a gpt-3.5-turbo
// compatible encoding.
func CountTokens(text string) (int, error) {
	enc, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
	if err != nil {
		return 0, err
	}
	tokens := enc.Encode(text, nil, nil)
	return len(tokens), nil
}
