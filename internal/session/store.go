// Package session owns the client's authentication state: who is logged in,
// with what credential. The Store is the single source of truth; the Monitor
// revalidates the credential in the background and forces logout when the
// server no longer honors it. All readers receive immutable snapshots —
// only the Store and Monitor hold mutation rights.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/clouddrive/clouddrive-go/internal/api"
	"github.com/clouddrive/clouddrive-go/internal/credfile"
	"github.com/clouddrive/clouddrive-go/internal/notify"
)

// AuthAPI is the slice of the collaborator the session layer needs.
// Defined at the consumer per "accept interfaces, return structs".
type AuthAPI interface {
	WhoAmI(ctx context.Context, cred string) (*api.Identity, error)
	Logout(ctx context.Context, ownerID string) error
}

// Session is an immutable snapshot of authentication state. Identity and
// Credential are both present or both absent, except during the transient
// initializing window while persisted state is being resolved.
type Session struct {
	Identity     *api.Identity
	Credential   string
	Initializing bool
}

// Authenticated reports whether the snapshot carries a logged-in identity.
func (s Session) Authenticated() bool {
	return s.Identity != nil && s.Credential != ""
}

// subscriberBuffer bounds each subscriber channel; slow readers miss
// intermediate snapshots rather than blocking a transition.
const subscriberBuffer = 8

// Store holds the current session and publishes every transition to
// subscribers. Safe for concurrent use.
type Store struct {
	client   AuthAPI
	credPath string
	notifier notify.Notifier
	logger   *slog.Logger

	hydrateOnce sync.Once

	mu   sync.Mutex
	cur  Session
	subs map[int]chan Session
	next int
}

// NewStore creates a Store in the initializing state. Nothing should read
// the session until Hydrate completes.
func NewStore(client AuthAPI, credPath string, notifier notify.Notifier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	if notifier == nil {
		notifier = notify.Nop{}
	}

	return &Store{
		client:   client,
		credPath: credPath,
		notifier: notifier,
		logger:   logger,
		cur:      Session{Initializing: true},
		subs:     make(map[int]chan Session),
	}
}

// Snapshot returns the current session state.
func (s *Store) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cur
}

// Subscribe returns a channel receiving a snapshot on every transition,
// and a cancel function. The channel is closed on cancel.
func (s *Store) Subscribe() (<-chan Session, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++

	ch := make(chan Session, subscriberBuffer)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}

	return ch, cancel
}

// setSession replaces the current session and publishes it.
func (s *Store) setSession(next Session) {
	s.mu.Lock()
	s.cur = next

	for _, sub := range s.subs {
		select {
		case sub <- next:
		default: // slow reader, skip this snapshot
		}
	}
	s.mu.Unlock()
}

// Hydrate resolves the persisted credential into a session. It runs exactly
// once per process, at startup. A missing credential, a rejected credential,
// and a network failure all end in the unauthenticated state without any
// user-visible error — "no prior session" is the expected path. Hydrate
// never returns an error and always clears the initializing flag.
func (s *Store) Hydrate(ctx context.Context) {
	s.hydrateOnce.Do(func() {
		s.hydrate(ctx)
	})
}

func (s *Store) hydrate(ctx context.Context) {
	cred, err := credfile.Load(s.credPath)
	if err != nil {
		s.logger.Warn("reading persisted credential failed", slog.String("error", err.Error()))
		s.setSession(Session{})

		return
	}

	if cred == "" {
		s.logger.Debug("no persisted credential, starting unauthenticated")
		s.setSession(Session{})

		return
	}

	identity, err := s.client.WhoAmI(ctx, cred)
	if err != nil {
		s.logger.Info("persisted credential rejected, clearing",
			slog.String("error", err.Error()),
		)

		if rmErr := credfile.Remove(s.credPath); rmErr != nil {
			s.logger.Warn("clearing persisted credential failed", slog.String("error", rmErr.Error()))
		}

		s.setSession(Session{})

		return
	}

	s.logger.Info("session hydrated", slog.String("user_id", identity.ID))
	s.setSession(Session{Identity: identity, Credential: cred})
}

// Login persists the credential and transitions to authenticated. No network
// call happens here — the caller's auth flow has already validated the
// credentials. A persistence failure is logged, not surfaced: the in-memory
// session is still valid for this process.
func (s *Store) Login(identity *api.Identity, cred string) {
	if err := credfile.Save(s.credPath, cred); err != nil {
		s.logger.Warn("persisting credential failed", slog.String("error", err.Error()))
	}

	s.logger.Info("logged in", slog.String("user_id", identity.ID))
	s.setSession(Session{Identity: identity, Credential: cred})
	s.notifier.Success("Welcome back, " + identity.FirstName + "!")
}

// Logout notifies the server (best-effort — a failure is logged and ignored),
// clears the persisted credential, and transitions to unauthenticated
// unconditionally.
func (s *Store) Logout(ctx context.Context) {
	cur := s.Snapshot()

	if cur.Identity != nil {
		if err := s.client.Logout(ctx, cur.Identity.ID); err != nil {
			s.logger.Warn("server logout failed", slog.String("error", err.Error()))
		}
	}

	if err := credfile.Remove(s.credPath); err != nil {
		s.logger.Warn("clearing persisted credential failed", slog.String("error", err.Error()))
	}

	s.logger.Info("logged out")
	s.setSession(Session{})
	s.notifier.Success("Logged out successfully")
}

// ForceExpire is the monitor's path: the server no longer honors a session
// that still looks valid locally. Clears the persisted credential, forces
// the unauthenticated state, and emits exactly one notification. No-op when
// already unauthenticated.
func (s *Store) ForceExpire() {
	s.mu.Lock()
	authenticated := s.cur.Authenticated()
	s.mu.Unlock()

	if !authenticated {
		return
	}

	if err := credfile.Remove(s.credPath); err != nil {
		s.logger.Warn("clearing persisted credential failed", slog.String("error", err.Error()))
	}

	s.logger.Info("session expired server-side, forcing logout")
	s.setSession(Session{})
	s.notifier.Error("Session expired or user not found")
}
