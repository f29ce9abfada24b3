// Package session provides durable session records over an embedded
// key-value store, indexed three ways: by id, by secret, and by username.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/hydromaas/hydromaas/pkg/logger"
	"github.com/hydromaas/hydromaas/pkg/models"
)

const (
	idKeyPrefix     = "session:id:"
	secretKeyPrefix = "session:secret:"
	userKeyPrefix   = "session:user:"
	nextIDKey       = "session:next_id"
)

// StoreError reports that the backing store could not complete an operation.
// It is propagated to the caller, not retried here.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("session store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Manager owns all session records. Create and remove touch the record and
// all three indexes inside one transaction, so a partially-indexed session
// can never be observed.
type Manager struct {
	db     *badger.DB
	logger *logger.Logger
}

// Open opens (or creates) the session store at path.
func Open(path string, log *logger.Logger) (*Manager, error) {
	opts := badger.DefaultOptions(path).
		WithLoggingLevel(badger.ERROR).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}

	log.Info("Session store opened", logger.String("path", path))
	return &Manager{db: db, logger: log}, nil
}

// Close releases the backing store.
func (m *Manager) Close() error {
	return m.db.Close()
}

// CreateSession allocates a new unique id and secret, persists the record,
// and indexes it by id, secret, and username.
func (m *Manager) CreateSession(ipAddress, username string) (*models.Session, error) {
	now := time.Now().UTC()
	sess := &models.Session{
		SessionSecret: newSecret(),
		User:          username,
		IPAddress:     ipAddress,
		CreatedAt:     now,
		LastAccessed:  now,
	}

	err := m.db.Update(func(txn *badger.Txn) error {
		id, err := nextID(txn)
		if err != nil {
			return err
		}
		sess.SessionID = id

		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}

		idVal := []byte(strconv.FormatInt(id, 10))
		if err := txn.Set(idKey(id), data); err != nil {
			return err
		}
		if err := txn.Set(secretKey(sess.SessionSecret), idVal); err != nil {
			return err
		}
		return txn.Set(userKey(username), idVal)
	})
	if err != nil {
		return nil, &StoreError{Op: "create", Err: err}
	}

	m.logger.Info("Session created",
		logger.Int64("session_id", sess.SessionID),
		logger.String("user", username),
		logger.String("ip", ipAddress),
	)
	return sess, nil
}

// LookupByID returns the session with the given id, or nil when absent.
func (m *Manager) LookupByID(id int64) (*models.Session, error) {
	var sess *models.Session
	err := m.db.View(func(txn *badger.Txn) error {
		s, err := readSession(txn, id)
		if err != nil {
			return err
		}
		sess = s
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "lookup by id", Err: err}
	}
	return sess, nil
}

// LookupBySecret returns the session with the given secret, or nil.
func (m *Manager) LookupBySecret(secret string) (*models.Session, error) {
	return m.lookupIndexed("lookup by secret", secretKey(secret))
}

// LookupByUsername returns the username's active session, or nil.
func (m *Manager) LookupByUsername(username string) (*models.Session, error) {
	return m.lookupIndexed("lookup by username", userKey(username))
}

func (m *Manager) lookupIndexed(op string, key []byte) (*models.Session, error) {
	var sess *models.Session
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id, err := strconv.ParseInt(string(val), 10, 64)
			if err != nil {
				return err
			}
			s, err := readSession(txn, id)
			if err != nil {
				return err
			}
			sess = s
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Op: op, Err: err}
	}
	return sess, nil
}

// RefreshSession updates the session's last-accessed time. Idempotent: the
// id and secret never change.
func (m *Manager) RefreshSession(sess *models.Session) error {
	sess.LastAccessed = time.Now().UTC()

	err := m.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}
		return txn.Set(idKey(sess.SessionID), data)
	})
	if err != nil {
		return &StoreError{Op: "refresh", Err: err}
	}
	return nil
}

// RemoveSession deletes the record and all three indexes atomically.
func (m *Manager) RemoveSession(sess *models.Session) error {
	err := m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(idKey(sess.SessionID)); err != nil {
			return err
		}
		if err := txn.Delete(secretKey(sess.SessionSecret)); err != nil {
			return err
		}
		return txn.Delete(userKey(sess.User))
	})
	if err != nil {
		return &StoreError{Op: "remove", Err: err}
	}

	m.logger.Info("Session removed",
		logger.Int64("session_id", sess.SessionID),
		logger.String("user", sess.User),
	)
	return nil
}

func readSession(txn *badger.Txn, id int64) (*models.Session, error) {
	item, err := txn.Get(idKey(id))
	if err != nil {
		return nil, err
	}
	var sess models.Session
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &sess)
	}); err != nil {
		return nil, err
	}
	return &sess, nil
}

// nextID reads and advances the id counter within the caller's transaction.
func nextID(txn *badger.Txn) (int64, error) {
	next := int64(1)
	item, err := txn.Get([]byte(nextIDKey))
	if err == nil {
		if err := item.Value(func(val []byte) error {
			cur, perr := strconv.ParseInt(string(val), 10, 64)
			if perr != nil {
				return perr
			}
			next = cur + 1
			return nil
		}); err != nil {
			return 0, err
		}
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return 0, err
	}

	if err := txn.Set([]byte(nextIDKey), []byte(strconv.FormatInt(next, 10))); err != nil {
		return 0, err
	}
	return next, nil
}

func idKey(id int64) []byte {
	return []byte(idKeyPrefix + strconv.FormatInt(id, 10))
}

func secretKey(secret string) []byte {
	return []byte(secretKeyPrefix + secret)
}

func userKey(username string) []byte {
	return []byte(userKeyPrefix + username)
}

// newSecret produces a 64-character opaque hex token.
func newSecret() string {
	raw := uuid.NewString() + uuid.NewString()
	return strings.ReplaceAll(raw, "-", "")
}
