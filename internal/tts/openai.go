package tts

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nikhilbhutani/factrouter/internal/llm"
	"github.com/nikhilbhutani/factrouter/internal/provider"
)

// OpenAI synthesizes speech with the audio/speech endpoint. Its voices are
// multilingual, so one voice serves every request language.
type OpenAI struct {
	id     string
	model  string
	voice  openai.SpeechVoice
	client *openai.Client
}

func NewOpenAI(d provider.Descriptor, apiKey, baseURL, voice string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	model := d.Model
	if model == "" {
		model = string(openai.TTSModel1)
	}
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	return &OpenAI{
		id:     d.ID,
		model:  model,
		voice:  openai.SpeechVoice(voice),
		client: openai.NewClientWithConfig(cfg),
	}
}

func (o *OpenAI) ID() string { return o.id }

func (o *OpenAI) Invoke(ctx context.Context, call provider.Call) (*provider.Output, error) {
	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.model),
		Input:          call.Content,
		Voice:          o.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, llm.ClassifyOpenAI(o.id, err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, provider.Transient(o.id, fmt.Errorf("read audio: %w", err))
	}
	if len(audio) == 0 {
		return nil, provider.Transient(o.id, errors.New("empty audio"))
	}

	return &provider.Output{
		Audio:       audio,
		ContentType: "audio/mpeg",
		Model:       o.model,
	}, nil
}
