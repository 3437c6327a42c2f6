package redis

// Package redis provides Redis-based adapters for the catalog admin.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/target/catalog-admin/internal/domain/auth"
	"github.com/target/catalog-admin/internal/ports"
)

const (
	defaultPrefix     = "admin_session:"
	maxUpdateAttempts = 5
	scanBatch         = 500
)

var _ ports.SessionSweeper = (*SessionStore)(nil)

// SessionStore is a Redis-based session store for production use.
// Key TTL tracks ExpiresAt so abandoned sessions disappear without a sweep.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewSessionStore creates a new Redis-based session store.
func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return NewSessionStoreWithPrefix(client, defaultPrefix)
}

// NewSessionStoreWithPrefix creates a Redis session store with a custom key prefix.
func NewSessionStoreWithPrefix(client redis.UniversalClient, prefix string) *SessionStore {
	return &SessionStore{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock overrides the clock used to derive key TTLs.
func (s *SessionStore) WithClock(now func() time.Time) *SessionStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *SessionStore) key(token string) string { return s.prefix + token }

func (s *SessionStore) ttl(sess domainauth.Session) time.Duration {
	return sess.ExpiresAt.Sub(s.now())
}

func (s *SessionStore) Save(ctx context.Context, sess domainauth.Session) error {
	if sess.Token == "" {
		return errors.New("session token cannot be empty")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := s.ttl(sess)
	if ttl <= 0 {
		return errors.New("session is expired")
	}

	if err := s.client.Set(ctx, s.key(sess.Token), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, token string) (domainauth.Session, error) {
	if token == "" {
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}

	data, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, domainauth.ErrSessionNotFound
		}
		return domainauth.Session{}, fmt.Errorf("redis get: %w", err)
	}
	return decodeSession(data)
}

// Update runs fn under WATCH so a concurrent writer to the same key aborts
// this transaction; aborted attempts are retried a bounded number of times.
func (s *SessionStore) Update(
	ctx context.Context,
	token string,
	fn ports.SessionMutator,
) (domainauth.Session, error) {
	if token == "" {
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}

	key := s.key(token)
	var out domainauth.Session
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domainauth.ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("redis get: %w", err)
		}
		sess, err := decodeSession(data)
		if err != nil {
			return err
		}

		if fnErr := fn(&sess); fnErr != nil {
			if !domainauth.IsTerminal(fnErr) {
				return fnErr
			}
			_, pipeErr := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if pipeErr != nil {
				return pipeErr
			}
			return fnErr
		}

		payload, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		ttl := s.ttl(sess)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if ttl <= 0 {
				pipe.Del(ctx, key)
				return nil
			}
			pipe.Set(ctx, key, payload, ttl)
			return nil
		})
		if err != nil {
			return err
		}
		out = sess
		return nil
	}

	for range maxUpdateAttempts {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domainauth.Session{}, err
		}
		return out, nil
	}
	return domainauth.Session{}, fmt.Errorf("update session: %w", redis.TxFailedErr)
}

func (s *SessionStore) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// DeleteStale removes up to limit sessions whose last activity is at or
// before idleCutoff.
// Expired sessions already vanish through key TTL; they are removed here
// too when a clock skew leaves one behind.
func (s *SessionStore) DeleteStale(ctx context.Context, now, idleCutoff time.Time, limit int) (int64, error) {
	return s.deleteMatching(ctx, limit, func(sess domainauth.Session) bool {
		return !now.Before(sess.ExpiresAt) || !sess.LastActivityAt.After(idleCutoff)
	})
}

// DeleteByAdmin removes every session of an admin.
func (s *SessionStore) DeleteByAdmin(ctx context.Context, adminID string) (int64, error) {
	return s.deleteMatching(ctx, 0, func(sess domainauth.Session) bool {
		return sess.AdminID == adminID
	})
}

// deleteMatching scans the prefix and deletes sessions for which match
// reports true. A limit of zero means no limit.
func (s *SessionStore) deleteMatching(
	ctx context.Context,
	limit int,
	match func(domainauth.Session) bool,
) (int64, error) {
	var deleted int64
	err := s.scanKeys(ctx, func(client redis.Cmdable, key string) (bool, error) {
		data, err := client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("redis get: %w", err)
		}
		sess, err := decodeSession(data)
		if err != nil || match(sess) {
			n, delErr := client.Del(ctx, key).Result()
			if delErr != nil {
				return false, fmt.Errorf("redis del: %w", delErr)
			}
			deleted += n
		}
		return limit <= 0 || deleted < int64(limit), nil
	})
	return deleted, err
}

// scanKeys visits every key under the prefix until fn returns false. Cluster
// clients are scanned one master at a time.
func (s *SessionStore) scanKeys(ctx context.Context, fn func(redis.Cmdable, string) (bool, error)) error {
	pattern := s.prefix + "*"
	scan := func(client redis.Cmdable) error {
		iter := client.Scan(ctx, 0, pattern, scanBatch).Iterator()
		for iter.Next(ctx) {
			more, err := fn(client, iter.Val())
			if err != nil {
				return err
			}
			if !more {
				return errStopScan
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		return nil
	}

	var err error
	if cluster, ok := s.client.(*redis.ClusterClient); ok {
		var mu sync.Mutex
		err = cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			mu.Lock()
			defer mu.Unlock()
			return scan(node)
		})
	} else {
		err = scan(s.client)
	}
	if errors.Is(err, errStopScan) {
		return nil
	}
	return err
}

var errStopScan = errors.New("stop scan")

func decodeSession(data []byte) (domainauth.Session, error) {
	var sess domainauth.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return sess, nil
}
