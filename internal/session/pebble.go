package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/cockroachdb/pebble"

	"order-bot/internal/domain"
)

const keyPrefix = "session/"

// PebbleStore implements Store on a local Pebble database, so sessions
// survive a restart of the polling process.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	d, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("session: pebble open: %w", err)
	}
	return &PebbleStore{db: d}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

func sessionKey(userID int64) []byte {
	return []byte(keyPrefix + strconv.FormatInt(userID, 10))
}

func (p *PebbleStore) Get(_ context.Context, userID int64) (domain.Session, bool, error) {
	v, closer, err := p.db.Get(sessionKey(userID))
	if errors.Is(err, pebble.ErrNotFound) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("session: pebble get: %w", err)
	}
	defer closer.Close()
	var sess domain.Session
	if err := json.Unmarshal(v, &sess); err != nil {
		return domain.Session{}, false, fmt.Errorf("session: decode %d: %w", userID, err)
	}
	return sess, true, nil
}

func (p *PebbleStore) Put(_ context.Context, sess domain.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: encode %d: %w", sess.UserID, err)
	}
	if err := p.db.Set(sessionKey(sess.UserID), raw, pebble.Sync); err != nil {
		return fmt.Errorf("session: pebble set: %w", err)
	}
	return nil
}

func (p *PebbleStore) Delete(_ context.Context, userID int64) error {
	if err := p.db.Delete(sessionKey(userID), pebble.Sync); err != nil {
		return fmt.Errorf("session: pebble delete: %w", err)
	}
	return nil
}

// Range visits every stored session in key order.
func (p *PebbleStore) Range(fn func(sess domain.Session) error) error {
	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix[:len(keyPrefix)-1] + "0"),
	})
	if err != nil {
		return fmt.Errorf("session: pebble iter: %w", err)
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		var sess domain.Session
		if err := json.Unmarshal(it.Value(), &sess); err != nil {
			return fmt.Errorf("session: decode %s: %w", it.Key(), err)
		}
		if err := fn(sess); err != nil {
			return err
		}
	}
	return it.Error()
}
