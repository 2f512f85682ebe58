package controller

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dukerupert/huddle/internal/loader"
	"github.com/dukerupert/huddle/internal/remotesync"
)

// Session groups the controllers of one signed-in user.
type Session struct {
	Groups     *GroupsController
	Activities *ActivitiesController
	Calendar   *ActivitiesController

	mu        sync.Mutex
	proposals map[string]*ProposalController
}

func (s *Session) dispose() {
	s.Groups.Dispose()
	s.Activities.Dispose()
	s.Calendar.Dispose()
	s.mu.Lock()
	for _, p := range s.proposals {
		p.Dispose()
	}
	clear(s.proposals)
	s.mu.Unlock()
}

// Sessions creates controllers on first use and keeps them, with their
// listeners, until Close.
type Sessions struct {
	loader *loader.Loader
	syncer *remotesync.Syncer
	pub    Publisher
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

func NewSessions(l *loader.Loader, s *remotesync.Syncer, pub Publisher, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{loader: l, syncer: s, pub: pub, logger: logger, sessions: make(map[string]*Session)}
}

// Get returns the session for userID, creating it with ctx's values on
// first use. After Close it returns a disposed session whose loads fail
// with ErrDisposed.
func (m *Sessions) Get(ctx context.Context, userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		return s
	}
	logger := m.logger.With("user", userID)
	s := &Session{
		Groups:     NewGroupsController(ctx, userID, m.loader, m.syncer, m.pub, logger.With("controller", "groups")),
		Activities: NewActivitiesController(ctx, userID, false, m.loader, m.syncer, m.pub, logger.With("controller", "activities")),
		Calendar:   NewActivitiesController(ctx, userID, true, m.loader, m.syncer, m.pub, logger.With("controller", "calendar")),
		proposals:  make(map[string]*ProposalController),
	}
	if m.closed {
		s.dispose()
		return s
	}
	m.sessions[userID] = s
	return s
}

// Proposal returns the user's controller for one proposal.
func (m *Sessions) Proposal(ctx context.Context, userID, proposalID string) *ProposalController {
	s := m.Get(ctx, userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.proposals[proposalID]; ok {
		return p
	}
	p := NewProposalController(ctx, proposalID, userID, m.loader, m.syncer, m.pub, m.logger.With("user", userID, "controller", "proposal"))
	if s.Groups.alive() {
		s.proposals[proposalID] = p
	} else {
		p.Dispose()
	}
	return p
}

// Drop disposes one user's controllers.
func (m *Sessions) Drop(userID string) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if ok {
		s.dispose()
	}
}

// Close disposes every session.
func (m *Sessions) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.closed = true
	m.mu.Unlock()

	for _, s := range sessions {
		s.dispose()
	}
}
