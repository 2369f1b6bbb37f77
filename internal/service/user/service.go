package user

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"uk.co.dudmesh.hive/internal/model"
	"uk.co.dudmesh.hive/internal/store"
	"uk.co.dudmesh.hive/pkg/crypt"
)

const (
	MinUsernameLength = 1
	MaxUsernameLength = 30
	PasswordCost      = 10
)

var ErrorInvalidUsername = errors.New("username must start with a letter and contain only lowercase letters, digits and underscores")

// starts with a letter so a username never classifies as a numeric id
var usernamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

type Config interface {
	LocalBaseURL() string
}

type Database interface {
	CreateUser(ctx context.Context, user *model.User, keys *model.SigningKeyPair) error
	UserBy(ctx context.Context, sel store.Selector) (*model.User, error)
	PutKeyPair(ctx context.Context, keys *model.SigningKeyPair) error
}

type service struct {
	config Config
	db     Database
}

func New(config Config, db Database) *service {
	return &service{
		config: config,
		db:     db,
	}
}

func ValidateUsername(name string) error {
	if len(name) < MinUsernameLength || len(name) > MaxUsernameLength || !usernamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrorInvalidUsername, name)
	}
	return nil
}

// Create provisions a local account together with its signing key pair. An
// account never exists without a key.
func (s *service) Create(ctx context.Context, params *model.CreateUserParams) (*model.User, error) {
	name := strings.TrimSpace(params.Name)
	if err := ValidateUsername(name); err != nil {
		return nil, err
	}

	publicKeyPem, privateKeyPem, err := crypt.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating public/private key pair: %w", err)
	}

	encodedPassword := ""
	if params.Password != "" {
		passwordBytes, err := bcrypt.GenerateFromPassword([]byte(params.Password), PasswordCost)
		if err != nil {
			return nil, fmt.Errorf("generating encoded password: %w", err)
		}
		encodedPassword = base64.StdEncoding.EncodeToString(passwordBytes)
	}

	displayName := params.DisplayName
	if displayName == "" {
		displayName = name
	}

	base := s.config.LocalBaseURL()
	federationID := fmt.Sprintf("%s/users/%s", base, name)
	user := &model.User{
		FederationID: federationID,
		Name:         name,
		DisplayName:  displayName,
		Email:        params.Email,
		Summary:      params.Summary,
		URL:          fmt.Sprintf("%s/@%s", base, name),
		Inbox:        federationID + "/inbox",
		Outbox:       federationID + "/outbox",
		Following:    federationID + "/following",
		Followers:    federationID + "/followers",
		Featured:     federationID + "/collections/featured",
		FeaturedTags: federationID + "/collections/tags",
		Discoverable: true,
		Indexable:    true,
		Published:    time.Now().UTC().Truncate(time.Second),
		Password:     encodedPassword,
	}

	keys := &model.SigningKeyPair{
		PublicKeyPem:  publicKeyPem,
		PrivateKeyPem: privateKeyPem,
	}

	if err := s.db.CreateUser(ctx, user, keys); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	return user, nil
}

func (s *service) FetchByName(ctx context.Context, name string) (*model.User, error) {
	user, err := s.db.UserBy(ctx, store.ByUsername(name))
	if err != nil {
		return nil, fmt.Errorf("fetching user: %w", err)
	}
	return user, nil
}

// Authenticate checks password against the stored hash. Unknown users and
// wrong passwords are indistinguishable to the caller.
func (s *service) Authenticate(ctx context.Context, name string, password string) (*model.User, error) {
	user, err := s.db.UserBy(ctx, store.ByUsername(name))
	if err != nil {
		if errors.Is(err, model.ErrorUserNotFound) {
			return nil, model.ErrorInvalidUsernameOrPassword
		}
		return nil, fmt.Errorf("fetching user: %w", err)
	}

	hash, err := base64.StdEncoding.DecodeString(user.Password)
	if err != nil || len(hash) == 0 {
		return nil, model.ErrorInvalidUsernameOrPassword
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return nil, model.ErrorInvalidUsernameOrPassword
	}

	return user, nil
}

// RotateKeys replaces the signing key pair of name once password checks out.
// Peers holding the old key pick up the new one when their cache expires.
func (s *service) RotateKeys(ctx context.Context, name string, password string) (*model.SigningKeyPair, error) {
	user, err := s.Authenticate(ctx, name, password)
	if err != nil {
		return nil, err
	}

	publicKeyPem, privateKeyPem, err := crypt.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating public/private key pair: %w", err)
	}

	keys := &model.SigningKeyPair{
		UserID:        user.ID,
		PublicKeyPem:  publicKeyPem,
		PrivateKeyPem: privateKeyPem,
	}
	if err := s.db.PutKeyPair(ctx, keys); err != nil {
		return nil, fmt.Errorf("storing key pair: %w", err)
	}

	return keys, nil
}
