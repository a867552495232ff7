// Package mock provides scripted test doubles for the live session
// interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/griotlabs/griot/pkg/provider/live"
)

// FunctionResponse records one SendFunctionResponse call.
type FunctionResponse struct {
	ID     string
	Name   string
	Result map[string]any
}

// VideoFrame records one SendVideoFrame call.
type VideoFrame struct {
	Frame  []byte
	Width  int
	Height int
}

// Session is a scripted live.Session. Tests push model events through
// [Session.Emit] and inspect what the system under test sent back.
type Session struct {
	mu sync.Mutex

	events chan live.Event
	closed bool

	// SendErr, when set, is returned by every Send method.
	SendErr error

	// SentAudio, SentText and SentFunctionResponses record calls in order.
	SentAudio             [][]byte
	SentText              []string
	SentVideoFrames       []VideoFrame
	SentFunctionResponses []FunctionResponse
	InterruptCount        int
}

var _ live.Session = (*Session)(nil)

// NewSession creates an open mock session.
func NewSession() *Session {
	return &Session{events: make(chan live.Event, 64)}
}

// Emit delivers a model event to the session consumer.
func (s *Session) Emit(ev live.Event) {
	s.events <- ev
}

// Events implements live.Session.
func (s *Session) Events() <-chan live.Event { return s.events }

// SendAudio implements live.Session.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	s.SentAudio = append(s.SentAudio, append([]byte(nil), chunk...))
	return nil
}

// SendText implements live.Session.
func (s *Session) SendText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	s.SentText = append(s.SentText, text)
	return nil
}

// SendVideoFrame implements live.Session.
func (s *Session) SendVideoFrame(frame []byte, width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	s.SentVideoFrames = append(s.SentVideoFrames, VideoFrame{
		Frame:  append([]byte(nil), frame...),
		Width:  width,
		Height: height,
	})
	return nil
}

// SendFunctionResponse implements live.Session.
func (s *Session) SendFunctionResponse(id, name string, result map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	s.SentFunctionResponses = append(s.SentFunctionResponses, FunctionResponse{ID: id, Name: name, Result: result})
	return nil
}

// SendInterrupt implements live.Session.
func (s *Session) SendInterrupt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InterruptCount++
	return nil
}

// Err implements live.Session.
func (s *Session) Err() error { return nil }

// Close implements live.Session. Idempotent; closes the events channel.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// FunctionResponses returns a snapshot of recorded function responses.
func (s *Session) FunctionResponses() []FunctionResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FunctionResponse, len(s.SentFunctionResponses))
	copy(out, s.SentFunctionResponses)
	return out
}

// Provider is a live.Provider handing out a prepared session.
type Provider struct {
	mu sync.Mutex

	// Session is returned by Connect. When nil, a fresh mock session is
	// created per call.
	Session *Session

	// ConnectErr, when set, is returned by Connect.
	ConnectErr error

	// Configs records every Connect configuration received.
	Configs []live.Config
}

var _ live.Provider = (*Provider)(nil)

// Connect implements live.Provider.
func (p *Provider) Connect(_ context.Context, cfg live.Config) (live.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Configs = append(p.Configs, cfg)
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session == nil {
		p.Session = NewSession()
	}
	return p.Session, nil
}
