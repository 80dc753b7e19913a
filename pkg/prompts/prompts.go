// Package prompts holds the embedded prompt templates the pipeline stages
// prepend to their requests. Templates are plain Markdown; stages append
// metadata blocks rather than interpolating into the template body.
package prompts

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed templates
var templatesFS embed.FS

// Template names.
const (
	ArticleEnrich   = "article_enrich"
	ClaimProcessing = "claim_processing"
	RegularCheckin  = "regular_checkin"
	EndpointCheckin = "endpoint_checkin"
	FactCheck       = "fact_check"
	Roundup         = "roundup"
)

// Load returns the named template's text, trimmed of trailing whitespace.
func Load(name string) (string, error) {
	data, err := templatesFS.ReadFile("templates/" + name + ".md")
	if err != nil {
		return "", fmt.Errorf("load prompt template %q: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// MustLoad is Load for templates compiled into the binary; a missing name
// is a programmer error.
func MustLoad(name string) string {
	text, err := Load(name)
	if err != nil {
		panic(err)
	}
	return text
}
