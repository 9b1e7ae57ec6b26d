// Package openaicompat implements llm.Provider against any endpoint that
// speaks the OpenAI Chat Completions format (OpenAI, Azure OpenAI proxies,
// vLLM, Ollama, LiteLLM).
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "openai",
//	    APIKey:       cfg.LLM.APIKey,
//	    BaseURL:      cfg.LLM.BaseURL,
//	    DefaultModel: cfg.Agent.Model,
//	}, logger)
package openaicompat
