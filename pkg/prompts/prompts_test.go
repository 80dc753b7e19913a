package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAllTemplates(t *testing.T) {
	for _, name := range []string{
		ArticleEnrich, ClaimProcessing, RegularCheckin, EndpointCheckin, FactCheck, Roundup,
	} {
		text, err := Load(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, text, name)
	}
}

func TestLoadUnknownTemplate(t *testing.T) {
	_, err := Load("no_such_prompt")
	assert.Error(t, err)
}

func TestMustLoadPanicsOnUnknown(t *testing.T) {
	assert.Panics(t, func() { MustLoad("no_such_prompt") })
}
