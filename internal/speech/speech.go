// Package speech provides the text-to-speech and speech-to-text helpers used next to
// a chat session. They share no state with the session: results flow one way, through
// callbacks.
package speech

import "context"

// VoiceGender selects a voice. The zero value lets the synthesizer choose.
type VoiceGender string

const (
	VoiceFemale VoiceGender = "female"
	VoiceMale   VoiceGender = "male"
)

// Speaker plays text aloud. Speak is fire-and-forget.
type Speaker interface {
	Speak(ctx context.Context, text, languageHint string, voice VoiceGender)
	Stop()
	Loading() bool
	Speaking() bool
}

// Listener captures speech and reports the transcript through a callback.
type Listener interface {
	StartListening(languageHint string, onTranscript func(string)) error
	StopListening()
}

// Synthesizer turns text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req *SynthesisRequest) (*Audio, error)
}

// Transcriber turns audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio *Audio, languageHint string) (string, error)
}

// AudioSink plays audio, blocking until playback ends or ctx is done.
type AudioSink interface {
	Play(ctx context.Context, audio *Audio) error
}

// SynthesisRequest is the body sent to the speech synthesis endpoint.
type SynthesisRequest struct {
	Text        string      `json:"text"`
	Language    string      `json:"language,omitempty"`
	VoiceGender VoiceGender `json:"voiceGender,omitempty"`
}

// Audio is an encoded audio clip.
type Audio struct {
	Data     []byte
	MimeType string
}
