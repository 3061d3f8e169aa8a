package upload

import "math/rand"

var promptSuggestions = []string{
	"A cinematic drone shot flying over a misty mountain range at sunrise with golden light breaking through clouds",
	"A slow-motion shot of waves crashing against rocky cliffs with seagulls flying in the foreground",
	"A timelapse of a bustling city street at night with car light trails and neon signs glowing",
	"A macro shot of a dewdrop on a flower petal with sunlight creating rainbow reflections",
	"A tracking shot through a dense forest with sunbeams filtering through the canopy",
}

// PromptSuggestions returns a copy of the example prompts.
func PromptSuggestions() []string {
	out := make([]string, len(promptSuggestions))
	copy(out, promptSuggestions)
	return out
}

type globalRandom struct{}

func (globalRandom) IntN(n int) int { return rand.Intn(n) }
