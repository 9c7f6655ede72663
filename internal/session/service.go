package session

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"videojoin/internal/join"
)

var (
	// ErrSessionEnded is returned when ingesting into an ended session.
	ErrSessionEnded = errors.New("session has ended")
	// ErrEmptySegment is returned for a segment with neither bytes nor URL.
	ErrEmptySegment = errors.New("segment is empty")
	// ErrSegmentDropped is returned when the backend cannot take the
	// payload, e.g. a URL sent to a stream session.
	ErrSegmentDropped = errors.New("segment dropped by backend")
	// ErrTooManySessions is returned when MaxSessions sessions are active.
	ErrTooManySessions = errors.New("too many active sessions")
	// ErrServiceClosed is returned by CreateSession after Close.
	ErrServiceClosed = errors.New("session service closed")
)

// Service owns the join sessions and runs one event loop per session.
type Service struct {
	repo Repository
	cfg  Config
	log  *slog.Logger
	obs  join.Observer

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewService returns a Service whose session loops stop when ctx is
// cancelled or Close is called. obs may be nil.
func NewService(ctx context.Context, repo Repository, cfg Config, log *slog.Logger, obs join.Observer) *Service {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)
	return &Service{
		repo:   repo,
		cfg:    cfg,
		log:    log,
		obs:    obs,
		ctx:    ctx,
		cancel: cancel,
		group:  group,
	}
}

// CreateSession starts a new session with the given backend and mode.
func (s *Service) CreateSession(variant Variant, mode Mode) (*Session, error) {
	if s.ctx.Err() != nil {
		return nil, ErrServiceClosed
	}
	id := ID(uuid.NewString())
	log := s.log.With(slog.String("session_id", string(id)))
	sess, err := newSession(id, variant, mode, s.cfg, log, s.obs)
	if err != nil {
		return nil, err
	}
	if err := s.repo.AddBelow(sess, s.cfg.MaxSessions); err != nil {
		return nil, err
	}
	s.group.Go(func() error { return sess.run(s.ctx) })

	log.Info("session created",
		slog.String("variant", string(variant)),
		slog.String("mode", string(mode)),
		slog.String("fingerprint", sess.fingerprint))
	return sess, nil
}

// Ingest hands one segment to the session.
func (s *Service) Ingest(ctx context.Context, id ID, p join.Payload) (int, error) {
	if p.URL == "" && len(p.Data) == 0 {
		return 0, ErrEmptySegment
	}
	sess, ok := s.repo.Get(id)
	if !ok {
		return 0, ErrSessionNotFound
	}
	return sess.Ingest(ctx, p)
}

// Status returns the JSON view of a session.
func (s *Service) Status(ctx context.Context, id ID) (Status, error) {
	sess, ok := s.repo.Get(id)
	if !ok {
		return Status{}, ErrSessionNotFound
	}
	return sess.Status(ctx)
}

// Lookup returns the session with the given id.
func (s *Service) Lookup(id ID) (*Session, bool) {
	return s.repo.Get(id)
}

// EndSession stops the session's backend and closes its loop. Ending an
// ended session is a no-op.
func (s *Service) EndSession(ctx context.Context, id ID) error {
	sess, err := s.repo.End(id)
	if err != nil {
		return err
	}
	if err := sess.stop(ctx); err != nil {
		return errors.Wrapf(err, "end session %s", id)
	}
	return nil
}

// Purge forgets every ended session.
func (s *Service) Purge() int {
	return s.repo.Purge()
}

// ActiveSessions returns the number of sessions that are not ended.
func (s *Service) ActiveSessions() int {
	return s.repo.ActiveSessionCount()
}

// Close ends every session and waits for their loops to return.
func (s *Service) Close(ctx context.Context) error {
	for _, id := range s.repo.List() {
		if sess, ok := s.repo.Get(id); ok && !sess.Ended() {
			if err := s.EndSession(ctx, id); err != nil {
				s.log.Warn("end session on close failed", slog.String("session_id", string(id)), slog.String("error", err.Error()))
			}
		}
	}
	s.cancel()
	return s.group.Wait()
}
