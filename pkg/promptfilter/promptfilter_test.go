package promptfilter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearcut-studio/studio-server/internal/config"
)

func TestDisabledFilterApprovesEverything(t *testing.T) {
	for _, cfg := range []*config.Config{
		nil,
		{},
		{OpenAI: &config.OpenAIConfig{}},
	} {
		f := New(cfg)
		assert.False(t, f.Enabled())

		res, err := f.Check(context.Background(), "any prompt at all")
		require.NoError(t, err)
		assert.Equal(t, ResponseTypeApproved, res.Type)
	}
}

func TestEmptyPromptIsApproved(t *testing.T) {
	f := New(&config.Config{OpenAI: &config.OpenAIConfig{APIKey: "sk-test"}})
	require.True(t, f.Enabled())

	res, err := f.Check(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, ResponseTypeApproved, res.Type)
}
