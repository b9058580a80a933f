// Package managers holds the Redis-backed stores used by the scope.
package managers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	r "github.com/go-redis/redis/v8"
	"norelock.dev/soundscope/internal/accounts"
	"norelock.dev/soundscope/internal/db/redis"
	"norelock.dev/soundscope/internal/utils"
)

const (
	// AccountKeyPrefix is the prefix of the keys the account daemon writes to.
	AccountKeyPrefix = "account"

	// AccountChannel carries change notifications for account records.
	AccountChannel = "account-changes"

	// DefaultAccountTTL bounds how long a read account record is trusted
	// when no change notification arrives.
	DefaultAccountTTL = 30 * time.Second
)

// AccountChange is published on AccountChannel whenever an account record changes.
type AccountChange struct {
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
}

// recordReader reads a JSON record; *redis.Client implements it.
type recordReader interface {
	GetObject(ctx context.Context, key string, dest any) error
}

// AccountManager is an accounts.Source reading the status the host account
// daemon stores under "<prefix>:account:<service>".
type AccountManager struct {
	client  *redis.Client
	records recordReader
	logger  *utils.Logger
	service string
	key     string
	ttl     time.Duration

	mutex     sync.RWMutex
	cached    *accounts.Credentials
	cachedAt  time.Time
	listeners []func(accounts.Credentials)

	pubSub *r.PubSub
	cancel context.CancelFunc
}

// NewAccountManager creates a manager for service.
func NewAccountManager(client *redis.Client, service string, ttl time.Duration) *AccountManager {
	if ttl <= 0 {
		ttl = DefaultAccountTTL
	}
	return &AccountManager{
		client:  client,
		records: client,
		logger:  client.Logger().Named("account_manager"),
		service: service,
		key:     client.Key(AccountKeyPrefix, service),
		ttl:     ttl,
	}
}

// Credentials implements accounts.Source. A missing record means logged out.
func (m *AccountManager) Credentials(ctx context.Context) (accounts.Credentials, error) {
	m.mutex.RLock()
	if m.cached != nil && time.Since(m.cachedAt) < m.ttl {
		creds := *m.cached
		m.mutex.RUnlock()
		return creds, nil
	}
	m.mutex.RUnlock()

	return m.load(ctx)
}

func (m *AccountManager) load(ctx context.Context) (accounts.Credentials, error) {
	creds := accounts.Credentials{Service: m.service}

	err := m.records.GetObject(ctx, m.key, &creds)
	if err != nil && !redis.IsNil(err) {
		m.logger.Error("Failed to read account status", err, "service", m.service)
		return accounts.Credentials{}, err
	}

	m.mutex.Lock()
	m.cached = &creds
	m.cachedAt = time.Now()
	m.mutex.Unlock()

	return creds, nil
}

// Store writes an account record and notifies every watching scope.
// The host account daemon does this; the scope only uses it in tooling and tests.
func (m *AccountManager) Store(ctx context.Context, creds accounts.Credentials) error {
	creds.Service = m.service
	if err := m.client.SetObject(ctx, m.key, creds, 0); err != nil {
		return err
	}

	change, err := json.Marshal(AccountChange{Service: m.service, Timestamp: time.Now()})
	if err != nil {
		return err
	}
	return m.client.Publish(ctx, AccountChannel, string(change))
}

// OnChange registers fn to be called with the new status after every change notification.
func (m *AccountManager) OnChange(fn func(accounts.Credentials)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Watch subscribes to change notifications until ctx is done or Close is called.
func (m *AccountManager) Watch(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	m.mutex.Lock()
	if m.pubSub != nil {
		m.mutex.Unlock()
		cancel()
		return
	}
	m.pubSub = m.client.Subscribe(ctx, AccountChannel)
	m.cancel = cancel
	channel := m.pubSub.Channel()
	m.mutex.Unlock()

	m.logger.Info("Watching account changes", "service", m.service, "channel", AccountChannel)

	go func() {
		for {
			select {
			case msg, ok := <-channel:
				if !ok {
					m.logger.Warn("Account change channel closed")
					return
				}
				m.handleMessage(ctx, []byte(msg.Payload))
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *AccountManager) handleMessage(ctx context.Context, payload []byte) {
	var change AccountChange
	if err := json.Unmarshal(payload, &change); err != nil {
		m.logger.Warn("Ignoring malformed account change", "error", err)
		return
	}
	if change.Service != m.service {
		return
	}

	creds, err := m.load(ctx)
	if err != nil {
		return
	}
	m.logger.Info("Account status changed", "service", m.service, "authenticated", creds.Authenticated())

	m.mutex.RLock()
	listeners := append([]func(accounts.Credentials){}, m.listeners...)
	m.mutex.RUnlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					m.logger.Error("Panic in account change listener", nil, "panic", rec)
				}
			}()
			fn(creds)
		}()
	}
}

// Close stops watching.
func (m *AccountManager) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.pubSub != nil {
		err := m.pubSub.Close()
		m.pubSub = nil
		if err != nil {
			m.logger.Error("Failed to close account subscription", err)
			return err
		}
	}
	return nil
}
