// Package protocol defines the JSON frames exchanged with the Gemini
// BidiGenerateContent websocket endpoint: one client setup frame, then
// realtimeInput frames outbound and serverContent frames inbound.
package protocol

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

const (
	// DefaultHost is the Gemini live websocket host.
	DefaultHost = "generativelanguage.googleapis.com"

	bidiPath = "/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// AudioInMIME tags outbound microphone frames.
	AudioInMIME = "audio/pcm;rate=16000"

	// ModalityAudio requests audio-only responses.
	ModalityAudio = "AUDIO"
)

// Endpoint builds the wss URL for a live session. The API key travels as a
// query parameter per the service's websocket auth scheme. A host override
// may carry an explicit ws:// or wss:// scheme.
func Endpoint(host, apiKey string) string {
	scheme := "wss"
	host = strings.TrimSpace(host)
	if host == "" {
		host = DefaultHost
	}
	if s, rest, ok := strings.Cut(host, "://"); ok {
		scheme = s
		host = rest
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     bidiPath,
		RawQuery: url.Values{"key": []string{apiKey}}.Encode(),
	}
	return u.String()
}

// Blob is an inline media payload.
type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Part is one piece of content: text or inline media.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// Content is an ordered sequence of parts with an optional role.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

// PrebuiltVoiceConfig selects a named service voice.
type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// VoiceConfig wraps the voice selection.
type VoiceConfig struct {
	PrebuiltVoiceConfig PrebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

// SpeechConfig configures synthesized speech.
type SpeechConfig struct {
	VoiceConfig VoiceConfig `json:"voiceConfig"`
}

// GenerationConfig is the subset of generation settings used live.
type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

// Setup is the first client frame of every session.
type Setup struct {
	Model             string           `json:"model"`
	GenerationConfig  GenerationConfig `json:"generationConfig"`
	SystemInstruction *Content         `json:"systemInstruction,omitempty"`
}

// SetupFrame wraps Setup in its envelope.
type SetupFrame struct {
	Setup Setup `json:"setup"`
}

// RealtimeInput carries streamed media from the client.
type RealtimeInput struct {
	MediaChunks []Blob `json:"mediaChunks"`
}

// RealtimeInputFrame wraps RealtimeInput in its envelope.
type RealtimeInputFrame struct {
	RealtimeInput RealtimeInput `json:"realtimeInput"`
}

// AudioFrame builds a realtimeInput frame for one 16 kHz PCM capture frame.
func AudioFrame(pcm []byte) RealtimeInputFrame {
	return RealtimeInputFrame{
		RealtimeInput: RealtimeInput{
			MediaChunks: []Blob{{
				MIMEType: AudioInMIME,
				Data:     base64.StdEncoding.EncodeToString(pcm),
			}},
		},
	}
}

// ServerContent is the model-side payload of a server frame.
type ServerContent struct {
	ModelTurn    *Content `json:"modelTurn,omitempty"`
	Interrupted  bool     `json:"interrupted,omitempty"`
	TurnComplete bool     `json:"turnComplete,omitempty"`
}

// ServerFrame is the union of inbound frame kinds. Exactly one field is set.
type ServerFrame struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
	GoAway        *GoAway        `json:"goAway,omitempty"`
}

// GoAway announces an imminent server-side close.
type GoAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

// InlineAudio extracts and decodes the first inline audio payload of a
// model turn, or nil when the frame carries no audio.
func (sc *ServerContent) InlineAudio() ([]byte, error) {
	if sc == nil || sc.ModelTurn == nil {
		return nil, nil
	}
	for _, part := range sc.ModelTurn.Parts {
		if part.InlineData == nil || part.InlineData.Data == "" {
			continue
		}
		pcm, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return nil, fmt.Errorf("decode inline audio: %w", err)
		}
		return pcm, nil
	}
	return nil, nil
}
