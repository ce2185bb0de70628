package speech

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Player implements Speaker over a Synthesizer and an AudioSink. Starting a new
// utterance stops the previous one.
type Player struct {
	synth  Synthesizer
	sink   AudioSink
	logger *logrus.Logger

	mu         sync.Mutex
	cancel     context.CancelFunc
	generation uint64
	loading    bool
	speaking   bool
	done       chan struct{}
}

// NewPlayer creates a Player.
func NewPlayer(synth Synthesizer, sink AudioSink, logger *logrus.Logger) *Player {
	return &Player{synth: synth, sink: sink, logger: logger}
}

// Speak synthesizes and plays text in the background.
func (p *Player) Speak(ctx context.Context, text, languageHint string, voice VoiceGender) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	p.mu.Lock()
	p.stopLocked()
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.generation++
	gen := p.generation
	p.loading = true
	done := make(chan struct{})
	p.done = done
	p.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()

		audio, err := p.synth.Synthesize(ctx, &SynthesisRequest{Text: text, Language: languageHint, VoiceGender: voice})
		if !p.advance(gen, err == nil) {
			return
		}
		if err != nil {
			p.logger.WithError(err).Warn("speech synthesis failed")
			return
		}

		err = p.sink.Play(ctx, audio)
		p.advance(gen, false)
		if err != nil && !errors.Is(err, context.Canceled) {
			p.logger.WithError(err).Warn("audio playback failed")
		}
	}()
}

// advance moves utterance gen out of loading, into speaking or not. It returns false
// when gen was superseded or stopped.
func (p *Player) advance(gen uint64, speaking bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.generation != gen {
		return false
	}
	p.loading = false
	p.speaking = speaking
	return true
}

// Stop cancels the current utterance.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Player) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.generation++
	p.loading = false
	p.speaking = false
}

// Wait blocks until the current utterance has finished.
func (p *Player) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (p *Player) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

func (p *Player) Speaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speaking
}
