// Package users implements the user and message store (C12): a
// multi-index user record keyed by id with secondary pointers for
// lookup-by-email/username/phone/device/google, a monotonic status
// ladder, and a message sub-entity that rides the same change-stream
// primitive the catalog families use.
package users

import (
	"context"
	"fmt"
	"time"

	"erpcache.eve.dev/apierrors"
	"erpcache.eve.dev/common"
	"erpcache.eve.dev/kv"
	"erpcache.eve.dev/security"

	"github.com/google/uuid"
)

// Status is a position on the monotonic registration ladder.
type Status string

const (
	StatusUnregistered    Status = "unregistered"
	StatusRegistered      Status = "registered"
	StatusERPNextCustomer Status = "erpnext_customer"
	StatusVerified        Status = "verified"
)

var statusRank = map[Status]int{
	StatusUnregistered:    0,
	StatusRegistered:      1,
	StatusERPNextCustomer: 2,
	StatusVerified:        3,
}

// User is the record stored at user:<id>.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email,omitempty"`
	Username     string    `json:"username,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	DeviceID     string    `json:"deviceId,omitempty"`
	GoogleID     string    `json:"googleId,omitempty"`
	Province     string    `json:"province,omitempty"`
	City         string    `json:"city,omitempty"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	Status       Status    `json:"status"`
	Deleted      bool      `json:"deleted,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CreateUserInput is what a caller supplies to register a new user.
type CreateUserInput struct {
	Email    string
	Username string
	Phone    string
	DeviceID string
	GoogleID string
	Province string
	City     string
	Password string
}

// Store implements the C12 user and message store over a kv.Store.
type Store struct {
	kv         *kv.Store
	log        *common.ContextLogger
	bcryptCost int
}

// NewStore builds a Store. bcryptCost is the cost factor CreateUser hashes
// new passwords at (config.AuthConfig.BcryptCost); a value outside bcrypt's
// valid range falls back to security.DefaultBcryptCost.
func NewStore(store *kv.Store, log *common.ContextLogger, bcryptCost int) *Store {
	if log == nil {
		log = common.NewContextLogger(nil, map[string]interface{}{"component": "users"})
	}
	return &Store{kv: store, log: log, bcryptCost: bcryptCost}
}

func userKey(id string) string          { return fmt.Sprintf("user:%s", id) }
func emailPointerKey(v string) string    { return fmt.Sprintf("email:%s", v) }
func usernamePointerKey(v string) string { return fmt.Sprintf("username:%s", v) }
func phonePointerKey(v string) string    { return fmt.Sprintf("phone:%s", v) }
func devicePointerKey(v string) string   { return fmt.Sprintf("device:%s", v) }
func googlePointerKey(v string) string   { return fmt.Sprintf("google:%s", v) }
func provinceSetKey(v string) string     { return fmt.Sprintf("province:%s:users", v) }
func citySetKey(v string) string         { return fmt.Sprintf("city:%s:users", v) }

const nonRegisteredSetKey = "non_registered:users"

// CreateUser registers a new user, rejecting a request whose email,
// username, phone, device, or google id already points at another
// account (409 Conflict), and indexing it by every identity it carries.
func (s *Store) CreateUser(ctx context.Context, in CreateUserInput) (*User, error) {
	for _, check := range []struct {
		value string
		key   func(string) string
	}{
		{in.Email, emailPointerKey},
		{in.Username, usernamePointerKey},
		{in.Phone, phonePointerKey},
		{in.DeviceID, devicePointerKey},
		{in.GoogleID, googlePointerKey},
	} {
		if check.value == "" {
			continue
		}
		if _, err := s.kv.Get(ctx, check.key(check.value)); err != kv.ErrNotFound {
			if err != nil {
				return nil, apierrors.Wrap(apierrors.Transient, check.key(check.value), err)
			}
			return nil, apierrors.Conflictf("users: %s already registered", check.key(check.value))
		}
	}

	var passwordHash string
	if in.Password != "" {
		hash, err := security.HashPassword(in.Password, s.bcryptCost)
		if err != nil {
			return nil, apierrors.Internalf("users: hash password: %v", err)
		}
		passwordHash = hash
	}

	now := time.Now().UTC()
	user := &User{
		ID:           uuid.New().String(),
		Email:        in.Email,
		Username:     in.Username,
		Phone:        in.Phone,
		DeviceID:     in.DeviceID,
		GoogleID:     in.GoogleID,
		Province:     in.Province,
		City:         in.City,
		PasswordHash: passwordHash,
		Status:       StatusUnregistered,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.save(ctx, user); err != nil {
		return nil, err
	}

	if err := s.indexPointers(ctx, user); err != nil {
		return nil, err
	}

	if err := s.kv.SAdd(ctx, nonRegisteredSetKey, user.ID); err != nil {
		return nil, apierrors.Wrap(apierrors.Transient, user.ID, err)
	}
	if user.Province != "" {
		if err := s.kv.SAdd(ctx, provinceSetKey(user.Province), user.ID); err != nil {
			return nil, apierrors.Wrap(apierrors.Transient, user.ID, err)
		}
	}
	if user.City != "" {
		if err := s.kv.SAdd(ctx, citySetKey(user.City), user.ID); err != nil {
			return nil, apierrors.Wrap(apierrors.Transient, user.ID, err)
		}
	}

	return user, nil
}

func (s *Store) indexPointers(ctx context.Context, user *User) error {
	pointers := map[string]string{}
	if user.Email != "" {
		pointers[emailPointerKey(user.Email)] = user.ID
	}
	if user.Username != "" {
		pointers[usernamePointerKey(user.Username)] = user.ID
	}
	if user.Phone != "" {
		pointers[phonePointerKey(user.Phone)] = user.ID
	}
	if user.DeviceID != "" {
		pointers[devicePointerKey(user.DeviceID)] = user.ID
	}
	if user.GoogleID != "" {
		pointers[googlePointerKey(user.GoogleID)] = user.ID
	}

	for key, id := range pointers {
		if err := s.kv.Set(ctx, key, id, 0); err != nil {
			return apierrors.Wrap(apierrors.Transient, key, err)
		}
	}
	return nil
}

// Public returns a copy of the user with its password hash cleared, fit
// for a response body.
func (u *User) Public() *User {
	out := *u
	out.PasswordHash = ""
	return &out
}

// GetUser reads a user by primary id.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	return s.load(ctx, id)
}

// GetByEmail, GetByUsername, GetByPhone, GetByDevice, and GetByGoogleID
// resolve a user through their respective secondary pointer.

func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.getByPointer(ctx, emailPointerKey(email))
}

func (s *Store) GetByUsername(ctx context.Context, username string) (*User, error) {
	return s.getByPointer(ctx, usernamePointerKey(username))
}

func (s *Store) GetByPhone(ctx context.Context, phone string) (*User, error) {
	return s.getByPointer(ctx, phonePointerKey(phone))
}

func (s *Store) GetByDevice(ctx context.Context, deviceID string) (*User, error) {
	return s.getByPointer(ctx, devicePointerKey(deviceID))
}

func (s *Store) GetByGoogleID(ctx context.Context, googleID string) (*User, error) {
	return s.getByPointer(ctx, googlePointerKey(googleID))
}

func (s *Store) getByPointer(ctx context.Context, pointerKey string) (*User, error) {
	id, err := s.kv.Get(ctx, pointerKey)
	if err == kv.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Transient, pointerKey, err)
	}
	return s.load(ctx, id)
}

// UpdateStatus advances a user's registration status. Transitions are
// monotonic: a request to move to a lower-ranked status is rejected and
// logged rather than silently applied.
func (s *Store) UpdateStatus(ctx context.Context, id string, newStatus Status) (*User, error) {
	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apierrors.NotFoundf("users: %s not found", id)
	}

	if statusRank[newStatus] < statusRank[user.Status] {
		s.log.WithFields(map[string]interface{}{
			"user_id": id, "from": string(user.Status), "to": string(newStatus),
		}).Warn("rejected status downgrade")
		return nil, apierrors.Conflictf("users: cannot downgrade status from %s to %s", user.Status, newStatus)
	}

	wasUnregistered := user.Status == StatusUnregistered
	user.Status = newStatus
	user.UpdatedAt = time.Now().UTC()

	if err := s.save(ctx, user); err != nil {
		return nil, err
	}

	if wasUnregistered && newStatus != StatusUnregistered {
		if err := s.kv.SRem(ctx, nonRegisteredSetKey, user.ID); err != nil {
			return nil, apierrors.Wrap(apierrors.Transient, user.ID, err)
		}
	}

	return user, nil
}

// Authenticate resolves a user by email or username and checks the
// supplied password against its stored hash. It returns (nil, nil) for
// an unknown identifier or a user registered without a password, and an
// apierrors.Unauthorized error for a wrong password.
func (s *Store) Authenticate(ctx context.Context, identifier, password string) (*User, error) {
	user, err := s.GetByEmail(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user, err = s.GetByUsername(ctx, identifier)
		if err != nil {
			return nil, err
		}
	}
	if user == nil || user.PasswordHash == "" {
		return nil, nil
	}

	if err := security.VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, apierrors.Unauthorizedf("users: wrong password for %s", identifier)
	}
	return user, nil
}

// SoftDelete deactivates a user. Phone and device pointers are
// deliberately retained (not removed) so the same phone/device cannot
// re-register a fresh account; every other pointer is released.
func (s *Store) SoftDelete(ctx context.Context, id string) error {
	user, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if user == nil {
		return apierrors.NotFoundf("users: %s not found", id)
	}

	if user.Email != "" {
		if err := s.kv.Del(ctx, emailPointerKey(user.Email)); err != nil {
			return apierrors.Wrap(apierrors.Transient, user.ID, err)
		}
	}
	if user.Username != "" {
		if err := s.kv.Del(ctx, usernamePointerKey(user.Username)); err != nil {
			return apierrors.Wrap(apierrors.Transient, user.ID, err)
		}
	}
	if user.GoogleID != "" {
		if err := s.kv.Del(ctx, googlePointerKey(user.GoogleID)); err != nil {
			return apierrors.Wrap(apierrors.Transient, user.ID, err)
		}
	}

	user.Deleted = true
	user.UpdatedAt = time.Now().UTC()
	return s.save(ctx, user)
}

func (s *Store) load(ctx context.Context, id string) (*User, error) {
	raw, err := s.kv.Get(ctx, userKey(id))
	if err == kv.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Transient, id, err)
	}

	var user User
	if err := jsonUnmarshal(raw, &user); err != nil {
		return nil, apierrors.Internalf("users: corrupt record for %s: %v", id, err)
	}
	return &user, nil
}

func (s *Store) save(ctx context.Context, user *User) error {
	raw, err := jsonMarshal(user)
	if err != nil {
		return apierrors.Internalf("users: marshal %s: %v", user.ID, err)
	}
	if err := s.kv.Set(ctx, userKey(user.ID), raw, 0); err != nil {
		return apierrors.Wrap(apierrors.Transient, user.ID, err)
	}
	return nil
}
