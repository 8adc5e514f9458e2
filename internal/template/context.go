package template

// MergeContexts layers hook template data. Later layers win, except that
// nested maps present in both are merged key by key, so a container's
// "options" refine the application defaults instead of replacing them.
// Nil layers are skipped and no input map is modified.
func MergeContexts(layers ...map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for _, layer := range layers {
		for key, value := range layer {
			prev, okPrev := result[key].(map[string]interface{})
			next, okNext := value.(map[string]interface{})
			if okPrev && okNext {
				result[key] = MergeContexts(prev, next)
				continue
			}
			result[key] = value
		}
	}
	return result
}
