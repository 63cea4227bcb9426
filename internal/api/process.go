package api

import (
	"image"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clearcut-studio/studio-server/internal/compositor"
	"github.com/clearcut-studio/studio-server/internal/providers"
	"github.com/clearcut-studio/studio-server/pkg/promptfilter"
)

// ProcessImage dispatches one image to the named background-removal model
// and returns the cutout as PNG bytes.
func ProcessImage(c *gin.Context) {
	a := appFrom(c)

	file, err := c.FormFile("image")
	if err != nil {
		badRequest(c, "image file is required")
		return
	}

	model := c.PostForm("model")
	if model == "" {
		badRequest(c, "model is required")
		return
	}

	provider, ok := a.Providers.Lookup(model)
	if !ok {
		badRequest(c, "unknown model %q", model)
		return
	}

	apiKey := a.Providers.ResolveKey(model, c.PostForm("apiKey"))
	if a.Providers.KeyRequired(model) && apiKey == "" {
		badRequest(c, "apiKey is required for model %q", model)
		return
	}

	source, err := readFormFile(file)
	if err != nil {
		badRequest(c, "failed to read image: %v", err)
		return
	}

	cutout, err := provider.Remove(c.Request.Context(), source, apiKey, c.PostForm("prompt"))
	if err != nil {
		detail(c, http.StatusBadGateway, "processing failed: %v", err)
		return
	}

	c.Data(http.StatusOK, "image/png", cutout)
}

// PlaceTemplate composites a cutout onto the requested canvas. A template
// file may accompany the request; without one the canvas is plain white.
func PlaceTemplate(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		badRequest(c, "image file is required")
		return
	}

	source, err := readFormFile(file)
	if err != nil {
		badRequest(c, "failed to read image: %v", err)
		return
	}

	subject, err := compositor.Decode(source)
	if err != nil {
		badRequest(c, "invalid image data")
		return
	}

	width, _ := strconv.Atoi(c.PostForm("width"))
	height, _ := strconv.Atoi(c.PostForm("height"))

	template := decodeTemplate(c)

	composed, err := compositor.PlaceOnTemplate(subject, template, width, height)
	if err != nil {
		detail(c, http.StatusInternalServerError, "compositing failed: %v", err)
		return
	}

	c.Data(http.StatusOK, "image/png", composed)
}

// PlaceOnBackground generates a scene behind an already-processed cutout.
// Prompts pass through the moderation filter when one is configured.
func PlaceOnBackground(c *gin.Context) {
	a := appFrom(c)

	file, err := c.FormFile("processedImage")
	if err != nil {
		badRequest(c, "processedImage file is required")
		return
	}

	source, err := readFormFile(file)
	if err != nil {
		badRequest(c, "failed to read image: %v", err)
		return
	}

	prompt := c.PostForm("prompt")
	if a.PromptFilter != nil && prompt != "" {
		verdict, err := a.PromptFilter.Check(c.Request.Context(), prompt)
		if err != nil {
			detail(c, http.StatusBadGateway, "prompt moderation failed: %v", err)
			return
		}
		if verdict.Type == promptfilter.ResponseTypeRejected {
			badRequest(c, "prompt rejected: %s", verdict.Reason)
			return
		}
	}

	apiKey := a.Providers.ResolveKey("fal", c.PostForm("apiKey"))

	fal, ok := a.Providers.Lookup("fal")
	if !ok {
		detail(c, http.StatusInternalServerError, "background provider is not configured")
		return
	}
	generator, ok := fal.(*providers.Fal)
	if !ok {
		detail(c, http.StatusInternalServerError, "background provider is not configured")
		return
	}

	result, err := generator.PlaceOnBackground(c.Request.Context(), source, apiKey, prompt)
	if err != nil {
		detail(c, http.StatusBadGateway, "background placement failed: %v", err)
		return
	}

	c.Data(http.StatusOK, "image/png", result)
}

// decodeTemplate reads the optional template file. Unusable templates are
// ignored rather than failing the whole composite.
func decodeTemplate(c *gin.Context) image.Image {
	file, err := c.FormFile("templateFile")
	if err != nil {
		return nil
	}

	data, err := readFormFile(file)
	if err != nil {
		return nil
	}

	template, err := compositor.Decode(data)
	if err != nil {
		return nil
	}

	return template
}
