package upstream

import "strings"

// SupportedModels lists the text-to-image models the gateway exposes
// through GET /v1/models.
var SupportedModels = []string{
	// Flux
	"black-forest-labs/FLUX.1-dev",
	"black-forest-labs/FLUX.1",

	// Kolors
	"Kwai-Kolors/Kolors",

	// Stable Diffusion
	"stabilityai/stable-diffusion-xl-base-1.0",
	"stabilityai/stable-diffusion-2-1-base",
	"runwayml/stable-diffusion-v1-5",

	// Midjourney style
	"prompthero/openjourney",

	// Anime style
	"Linaqruf/anything-v3.0",
	"hakurei/waifu-diffusion",

	// Photorealistic
	"dreamlike-art/dreamlike-photoreal-2.0",

	// Others
	"CompVis/stable-diffusion-v1-4",
	"stabilityai/stable-diffusion-2-base",
}

// IsRetired reports whether a model has been withdrawn by the provider and
// should be rejected with 410 Gone.
func IsRetired(model string) bool {
	return strings.Contains(strings.ToLower(model), "janus")
}
