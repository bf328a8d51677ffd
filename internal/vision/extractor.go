// Package vision extracts a structured comic identity from a cover
// photograph via a vision-capable model.
package vision

import (
	"context"
	"fmt"
	"strings"

	"github.com/defibabylon/collectorsage/internal/identity"
	"github.com/defibabylon/collectorsage/internal/logging"
)

// Extractor reads a comic identity off an image.
type Extractor interface {
	Extract(ctx context.Context, imageJPEG []byte) (identity.ComicIdentity, error)
	Name() string
}

const extractionPrompt = "Given the following image, provide the title, issue number, volume, and publication year of the comic book.\n\n" +
	"Provide the information in the following format:\n" +
	"Title: <Title>\n" +
	"Issue Number: <Issue Number>\n" +
	"Volume: <Volume>\n" +
	"Year: <Year>"

// ModelExtractor extracts identities with one fixed model. Two
// instances form the fast/thorough pair the pipeline falls back
// across.
type ModelExtractor struct {
	client    *AnthropicClient
	model     string
	maxTokens int
	label     string
}

// NewModelExtractor builds an extractor bound to a model.
func NewModelExtractor(client *AnthropicClient, model, label string) *ModelExtractor {
	return &ModelExtractor{
		client:    client,
		model:     model,
		maxTokens: 1024,
		label:     label,
	}
}

func (e *ModelExtractor) Name() string {
	return fmt.Sprintf("%s (%s)", e.label, e.model)
}

// Extract sends the image to the model and parses its line-formatted
// reply into a cleaned identity.
func (e *ModelExtractor) Extract(ctx context.Context, imageJPEG []byte) (identity.ComicIdentity, error) {
	timer := logging.StartTimer(logging.CategoryVision, "Extract "+e.label)
	defer timer.Stop()

	text, err := e.client.CompleteWithImage(ctx, e.model, e.maxTokens, extractionPrompt, imageJPEG)
	if err != nil {
		return identity.ComicIdentity{}, fmt.Errorf("%s extraction failed: %w", e.label, err)
	}

	id := identity.Clean(ParseDetails(text))
	logging.Vision("%s extracted %q #%s (%s)", e.label, id.Title, id.IssueNumber, id.Year)
	return id, nil
}

// ParseDetails parses the model's line-prefixed reply. Unrecognized
// lines are ignored; missing fields stay empty for identity.Clean to
// collapse into sentinels.
func ParseDetails(text string) identity.ComicIdentity {
	var id identity.ComicIdentity
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Title:"):
			id.Title = strings.TrimSpace(strings.TrimPrefix(line, "Title:"))
		case strings.HasPrefix(line, "Issue Number:"):
			id.IssueNumber = strings.TrimSpace(strings.TrimPrefix(line, "Issue Number:"))
		case strings.HasPrefix(line, "Volume:"):
			id.Volume = strings.TrimSpace(strings.TrimPrefix(line, "Volume:"))
		case strings.HasPrefix(line, "Year:"):
			id.Year = strings.TrimSpace(strings.TrimPrefix(line, "Year:"))
		}
	}
	return id
}
