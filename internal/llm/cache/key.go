package cache

// DefaultModelKey stands in for the model name when a call names none.
const DefaultModelKey = "default"

// Fingerprint derives the cache key for a call. Only the model name and
// the prompt participate; temperature and token limits do not.
func Fingerprint(model, prompt string) string {
	if model == "" {
		model = DefaultModelKey
	}
	return model + "_" + prompt
}
