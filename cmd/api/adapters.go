package main

import (
	"log/slog"

	"github.com/nikhilbhutani/factrouter/internal/config"
	"github.com/nikhilbhutani/factrouter/internal/llm"
	"github.com/nikhilbhutani/factrouter/internal/provider"
	"github.com/nikhilbhutani/factrouter/internal/router"
	"github.com/nikhilbhutani/factrouter/internal/tts"
)

// buildAdapters constructs an adapter for every provider whose credential is
// present. Providers without one never reach the executor anyway.
func buildAdapters(reg *provider.Registry, creds router.Credentials, cfg *config.Config) []provider.Adapter {
	llmOpts := llm.Options{
		GeminiURL:    cfg.LLM.GeminiURL,
		OpenAIURL:    cfg.LLM.OpenAIURL,
		AnthropicURL: cfg.LLM.AnthropicURL,
		OllamaURL:    cfg.LLM.OllamaURL,
		OllamaModel:  cfg.LLM.OllamaModel,
	}
	ttsOpts := tts.Options{
		OpenAIURL:   cfg.LLM.OpenAIURL,
		OpenAIVoice: cfg.TTS.OpenAIVoice,
		PiperBin:    cfg.TTS.PiperBin,
		PiperModel:  cfg.TTS.PiperModel,
	}

	var adapters []provider.Adapter
	for _, d := range router.ResolveCredentials(reg.All(), creds) {
		key := creds[d.CredentialKey]

		var (
			a   provider.Adapter
			err error
		)
		if d.Has(provider.CapSpeechSynthesis) {
			a, err = tts.NewAdapter(d, key, ttsOpts)
		} else {
			a, err = llm.NewAdapter(d, key, llmOpts)
		}
		if err != nil {
			slog.Warn("skipping provider without adapter", "provider", d.ID, "error", err)
			continue
		}
		adapters = append(adapters, a)
	}
	return adapters
}

func providerIDs(chain []provider.Descriptor) []string {
	out := make([]string, len(chain))
	for i, d := range chain {
		out[i] = d.ID
	}
	return out
}
