package intake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bloodbank/bloodbank/internal/domain/declaration"
	"github.com/bloodbank/bloodbank/internal/domain/location"
	"github.com/bloodbank/bloodbank/internal/platform/auth"
	"github.com/bloodbank/bloodbank/internal/platform/metrics"
)

// Submitter persists confirmed declarations. *declaration.Service
// implements it.
type Submitter interface {
	Create(ctx context.Context, sub *declaration.Submission) error
}

// Service runs intake sessions. Every operation loads the session, rebuilds
// its selector and wizard, applies the change and saves the result.
// Operations on one session are serialized; different sessions run in
// parallel.
type Service struct {
	store  Store
	source location.Source
	decls  Submitter
	logger zerolog.Logger
	locks  keyedMutex
	now    func() time.Time
}

func NewService(store Store, source location.Source, decls Submitter, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		source: source,
		decls:  decls,
		logger: logger.With().Str("component", "intake").Logger(),
		locks:  keyedMutex{locks: make(map[uuid.UUID]*refMutex)},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create starts a session owned by the caller. A stored address in fields
// is restored into the selector. A failed province fetch does not fail
// creation; it is recorded on the session and can be retried.
func (s *Service) Create(ctx context.Context, fields map[string]string) (*Session, error) {
	now := s.now()
	sess := &Session{
		ID:        uuid.New(),
		Owner:     auth.UserIDFromContext(ctx),
		Fields:    Fields{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	for k, v := range fields {
		sess.Fields[k] = v
	}

	sel := location.NewSelector(s.source, sess.Fields, s.logger)
	if err := sel.Mount(ctx); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("location lookup failed while opening session")
	}
	wiz := declaration.NewWizard()
	wiz.Open(nil)

	sess.Location = sel.Snapshot()
	sess.Wizard = wiz.Snapshot()
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	metrics.ActiveSessions.Inc()
	s.logger.Debug().Str("session_id", sess.ID.String()).Msg("intake session opened")
	return sess, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.get(ctx, id)
}

func (s *Service) SelectProvince(ctx context.Context, id uuid.UUID, provinceID string) (*Session, error) {
	return s.apply(ctx, id, func(rt *runtime) error {
		return rt.sel.SelectProvince(ctx, provinceID)
	})
}

func (s *Service) SelectDistrict(ctx context.Context, id uuid.UUID, districtID string) (*Session, error) {
	return s.apply(ctx, id, func(rt *runtime) error {
		return rt.sel.SelectDistrict(ctx, districtID)
	})
}

func (s *Service) SelectWard(ctx context.Context, id uuid.UUID, wardID string) (*Session, error) {
	return s.apply(ctx, id, func(rt *runtime) error {
		return rt.sel.SelectWard(wardID)
	})
}

// RetryLocation re-issues a failed list fetch.
func (s *Service) RetryLocation(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.apply(ctx, id, func(rt *runtime) error {
		return rt.sel.Retry(ctx)
	})
}

// SetField writes a plain form field. The address fields belong to the
// selector and are rejected.
func (s *Service) SetField(ctx context.Context, id uuid.UUID, name, value string) (*Session, error) {
	if isSelectorField(name) {
		return nil, ErrReadOnlyField
	}
	return s.apply(ctx, id, func(rt *runtime) error {
		rt.sess.Fields.SetField(name, value)
		return nil
	})
}

func (s *Service) UpdateText(ctx context.Context, id uuid.UUID, f declaration.Field, text string) (*Session, error) {
	return s.apply(ctx, id, func(rt *runtime) error {
		return rt.wiz.SetText(f, text)
	})
}

func (s *Service) SetAgreement(ctx context.Context, id uuid.UUID, agreed bool) (*Session, error) {
	return s.apply(ctx, id, func(rt *runtime) error {
		return rt.wiz.SetAgreement(agreed)
	})
}

func (s *Service) Toggle(ctx context.Context, id uuid.UUID, f declaration.Field, tag string, checked bool) (*Session, error) {
	return s.apply(ctx, id, func(rt *runtime) error {
		return rt.wiz.Toggle(f, tag, checked)
	})
}

func (s *Service) ToggleOther(ctx context.Context, id uuid.UUID, f declaration.Field, checked bool) (*Session, error) {
	return s.apply(ctx, id, func(rt *runtime) error {
		return rt.wiz.ToggleOther(f, checked)
	})
}

func (s *Service) SetOtherText(ctx context.Context, id uuid.UUID, f declaration.Field, text string) (*Session, error) {
	return s.apply(ctx, id, func(rt *runtime) error {
		return rt.wiz.SetOtherText(f, text)
	})
}

func (s *Service) BlurOther(ctx context.Context, id uuid.UUID, f declaration.Field) (*Session, error) {
	return s.apply(ctx, id, func(rt *runtime) error {
		return rt.wiz.BlurOther(f)
	})
}

func (s *Service) Next(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.apply(ctx, id, func(rt *runtime) error {
		return rt.wiz.Next()
	})
}

func (s *Service) Previous(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.apply(ctx, id, func(rt *runtime) error {
		return rt.wiz.Previous()
	})
}

// Submit confirms the declaration. The summary and the selected address
// are stored as a pending submission and the session ends. On failure the
// session keeps its answers and the caller gets the current session back.
func (s *Service) Submit(ctx context.Context, id uuid.UUID) (*declaration.Submission, *Session, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	rt, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	value, ok := rt.sel.Value()
	if !ok {
		return nil, rt.sess, ErrLocationIncomplete
	}

	var sub *declaration.Submission
	answers := rt.wiz.State()
	rt.wiz.Restore(rt.wiz.Snapshot(), func(summary string) error {
		sub = &declaration.Submission{
			SessionID:       rt.sess.ID,
			Summary:         summary,
			Location:        value.String(),
			LocationDisplay: value.Display(),
			Answers:         answers,
		}
		return s.decls.Create(ctx, sub)
	})

	if _, err := rt.wiz.Submit(); err != nil {
		if saveErr := s.save(ctx, rt); saveErr != nil {
			return nil, nil, saveErr
		}
		return nil, rt.sess, err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("session_id", id.String()).Msg("delete submitted session")
	}
	metrics.ActiveSessions.Dec()
	return sub, nil, nil
}

// Close abandons the session and its answers.
func (s *Service) Close(ctx context.Context, id uuid.UUID) error {
	unlock := s.locks.lock(id)
	defer unlock()

	if _, err := s.get(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	metrics.ActiveSessions.Dec()
	return nil
}

// runtime is a session with its live components.
type runtime struct {
	sess *Session
	sel  *location.Selector
	wiz  *declaration.Wizard
}

// apply runs op on the session and saves whatever state op left behind,
// including recorded fetch errors and validation messages. op's error is
// returned together with the saved session.
func (s *Service) apply(ctx context.Context, id uuid.UUID, op func(rt *runtime) error) (*Session, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	rt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	opErr := op(rt)
	if err := s.save(ctx, rt); err != nil {
		return nil, err
	}
	return rt.sess, opErr
}

// get reads a session the caller may access. A session owned by someone
// else is reported as missing.
func (s *Service) get(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAccess(ctx, sess) {
		s.logger.Warn().
			Str("session_id", id.String()).
			Str("user_id", auth.UserIDFromContext(ctx)).
			Msg("refused access to another user's session")
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// canAccess lets staff and admins reach every session and a donor only the
// sessions they opened. A session opened without an identity has no owner.
func canAccess(ctx context.Context, sess *Session) bool {
	if sess.Owner == "" || auth.HasRole(auth.RolesFromContext(ctx), auth.RoleStaff) {
		return true
	}
	return auth.UserIDFromContext(ctx) == sess.Owner
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*runtime, error) {
	sess, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Fields == nil {
		sess.Fields = Fields{}
	}
	sel := location.NewSelector(s.source, sess.Fields, s.logger.With().Str("session_id", id.String()).Logger())
	sel.RestoreSnapshot(sess.Location)
	wiz := declaration.NewWizard()
	wiz.Restore(sess.Wizard, nil)
	return &runtime{sess: sess, sel: sel, wiz: wiz}, nil
}

func (s *Service) save(ctx context.Context, rt *runtime) error {
	rt.sess.Location = rt.sel.Snapshot()
	rt.sess.Wizard = rt.wiz.Snapshot()
	rt.sess.UpdatedAt = s.now()
	if err := s.store.Save(ctx, rt.sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// keyedMutex hands out one mutex per session id and forgets it once no
// caller holds or waits on it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(id uuid.UUID) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &refMutex{}
		k.locks[id] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
