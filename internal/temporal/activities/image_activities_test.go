package activities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/newsroom/content-pipeline/internal/domain"
	"github.com/newsroom/content-pipeline/internal/imagegen"
)

func TestGenerateImage(t *testing.T) {
	t.Run("passes context url", func(t *testing.T) {
		images := new(mockImages)
		images.On("Generate", mock.Anything, "a hero shot", "https://img.example.com/featured.png").
			Return(&imagegen.Image{URL: "https://img.example.com/hero.png", RevisedPrompt: "revised"}, nil)
		act := NewImageActivities(images, nil)

		suite := &testsuite.WorkflowTestSuite{}
		env := suite.NewTestActivityEnvironment()
		env.RegisterActivity(act)

		val, err := env.ExecuteActivity(act.GenerateImage, GenerateImageInput{
			Prompt:     "a hero shot",
			Role:       domain.RoleHero,
			ContextURL: "https://img.example.com/featured.png",
		})
		require.NoError(t, err)

		var out GenerateImageOutput
		require.NoError(t, val.Get(&out))
		assert.Equal(t, "https://img.example.com/hero.png", out.URL)
		assert.Equal(t, "revised", out.RevisedPrompt)
		images.AssertExpectations(t)
	})

	t.Run("content policy rejection is not retryable", func(t *testing.T) {
		images := new(mockImages)
		images.On("Generate", mock.Anything, mock.Anything, "").
			Return(nil, domain.NewExternalAPIError("image-generation", 400, "content policy violation", nil))
		act := NewImageActivities(images, nil)

		suite := &testsuite.WorkflowTestSuite{}
		env := suite.NewTestActivityEnvironment()
		env.RegisterActivity(act)

		_, err := env.ExecuteActivity(act.GenerateImage, GenerateImageInput{Prompt: "p", Role: domain.RoleFeatured})
		requireAppError(t, err, "permanent", true)
	})
}
