package config

// mergeLLMProviders layers user-defined providers over the built-in set.
// A user entry with a built-in name replaces it wholesale.
func mergeLLMProviders(builtin, user map[string]LLMProviderConfig) map[string]*LLMProviderConfig {
	merged := make(map[string]*LLMProviderConfig, len(builtin)+len(user))
	for name, p := range builtin {
		cp := p
		merged[name] = &cp
	}
	for name, p := range user {
		cp := p
		merged[name] = &cp
	}
	return merged
}
