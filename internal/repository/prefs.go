package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chess_companion/internal/domain/user"
	errs "chess_companion/internal/errors"
)

const (
	prefsKeyPrefix = "prefs:"
	stateKeyPrefix = "oauth:"
	stateTTL       = 10 * time.Minute
)

// PreferencesRepository keeps the small per-session state the service
// persists: linked account identifiers, the cached access credential and
// the board theme, plus short-lived PKCE verifiers keyed by oauth state.
type PreferencesRepository struct {
	log    *zap.SugaredLogger
	client *redis.Client
}

func NewPreferencesRepository(client *redis.Client, log *zap.SugaredLogger) *PreferencesRepository {
	return &PreferencesRepository{
		log:    log,
		client: client,
	}
}

// Get returns the stored preferences, or a zero value when nothing has
// been saved for the session yet.
func (p *PreferencesRepository) Get(ctx context.Context, sessionID string) (user.Preferences, error) {
	val, err := p.client.Get(ctx, prefsKeyPrefix+sessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return user.Preferences{}, nil
		}
		return user.Preferences{}, err
	}

	var prefs user.Preferences
	if err := json.Unmarshal([]byte(val), &prefs); err != nil {
		p.log.Warnf("corrupted preferences for session %s, resetting: %v", sessionID, err)
		return user.Preferences{}, nil
	}
	return prefs, nil
}

func (p *PreferencesRepository) Save(ctx context.Context, sessionID string, prefs user.Preferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	return p.client.Set(ctx, prefsKeyPrefix+sessionID, data, 0).Err()
}

// ClearCredential drops the cached access token but keeps the linked
// account names and the theme. Used on logout and on 401 responses.
func (p *PreferencesRepository) ClearCredential(ctx context.Context, sessionID string) error {
	prefs, err := p.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	prefs.LichessToken = ""
	return p.Save(ctx, sessionID, prefs)
}

// StoreOAuthState keeps a PKCE verifier for the duration of one
// authorization round trip.
func (p *PreferencesRepository) StoreOAuthState(ctx context.Context, state, verifier string) error {
	return p.client.Set(ctx, stateKeyPrefix+state, verifier, stateTTL).Err()
}

// TakeOAuthState returns and deletes the verifier for a state, so a code
// can be exchanged at most once.
func (p *PreferencesRepository) TakeOAuthState(ctx context.Context, state string) (string, error) {
	verifier, err := p.client.GetDel(ctx, stateKeyPrefix+state).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", errs.ErrStateNotFound
		}
		return "", err
	}
	return verifier, nil
}
