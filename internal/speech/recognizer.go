package speech

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrAlreadyListening is returned by StartListening while a capture is in progress.
var ErrAlreadyListening = errors.New("already listening")

const transcribeTimeout = 30 * time.Second

// Recognizer implements Listener over a Transcriber. Audio is pushed with Feed while
// listening; StopListening transcribes it and calls back with the transcript.
type Recognizer struct {
	transcriber Transcriber
	mimeType    string
	logger      *logrus.Logger

	mu           sync.Mutex
	listening    bool
	language     string
	onTranscript func(string)
	buf          bytes.Buffer
	pending      sync.WaitGroup
}

// NewRecognizer creates a Recognizer for audio of the given MIME type.
func NewRecognizer(transcriber Transcriber, mimeType string, logger *logrus.Logger) *Recognizer {
	return &Recognizer{transcriber: transcriber, mimeType: mimeType, logger: logger}
}

func (r *Recognizer) StartListening(languageHint string, onTranscript func(string)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.listening {
		return ErrAlreadyListening
	}
	r.listening = true
	r.language = languageHint
	r.onTranscript = onTranscript
	r.buf.Reset()
	return nil
}

// Feed appends captured audio. It is ignored when not listening.
func (r *Recognizer) Feed(chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listening {
		r.buf.Write(chunk)
	}
}

func (r *Recognizer) StopListening() {
	r.mu.Lock()
	if !r.listening {
		r.mu.Unlock()
		return
	}
	r.listening = false
	audio := &Audio{Data: bytes.Clone(r.buf.Bytes()), MimeType: r.mimeType}
	lang, cb := r.language, r.onTranscript
	r.buf.Reset()
	r.mu.Unlock()

	if len(audio.Data) == 0 || cb == nil {
		return
	}

	r.pending.Add(1)
	go func() {
		defer r.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), transcribeTimeout)
		defer cancel()

		text, err := r.transcriber.Transcribe(ctx, audio, lang)
		if err != nil {
			r.logger.WithError(err).Warn("transcription failed")
			return
		}
		if text = strings.TrimSpace(text); text != "" {
			cb(text)
		}
	}()
}

// Cancel stops listening and discards the captured audio.
func (r *Recognizer) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listening = false
	r.buf.Reset()
}

// Wait blocks until pending transcriptions have been delivered.
func (r *Recognizer) Wait() {
	r.pending.Wait()
}
