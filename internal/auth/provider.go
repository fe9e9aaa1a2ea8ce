package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"qrattend/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnsupported        = errors.New("sign-in method not supported by this provider")
)

// Credentials is a sign-in attempt. Local accounts use Email and Password,
// the hosted provider uses IDToken.
type Credentials struct {
	Email    string `json:"email" binding:"omitempty,email"`
	Password string `json:"password"`
	IDToken  string `json:"id_token"`
}

// Provider authenticates callers and creates sign-in accounts.
type Provider interface {
	SignIn(ctx context.Context, cred Credentials) (model.Identity, error)
	// CreateUser returns the new account's uid. A taken email is
	// model.ErrDuplicate.
	CreateUser(ctx context.Context, email, password string, role model.Role) (string, error)
}

// AccountStore persists local accounts.
type AccountStore interface {
	CreateAccount(ctx context.Context, a model.Account) error
	AccountByEmail(ctx context.Context, email string) (model.Account, error)
}

// LocalProvider keeps bcrypt password hashes in the SQL store.
type LocalProvider struct {
	accounts AccountStore
	cost     int
}

// NewLocalProvider hashes with cost; zero means bcrypt.DefaultCost.
func NewLocalProvider(accounts AccountStore, cost int) *LocalProvider {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &LocalProvider{accounts: accounts, cost: cost}
}

// SignIn checks email and password.
func (p *LocalProvider) SignIn(ctx context.Context, cred Credentials) (model.Identity, error) {
	if cred.Email == "" || cred.Password == "" {
		if cred.IDToken != "" {
			return model.Identity{}, ErrUnsupported
		}
		return model.Identity{}, ErrInvalidCredentials
	}
	acct, err := p.accounts.AccountByEmail(ctx, cred.Email)
	if errors.Is(err, model.ErrNotFound) {
		return model.Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return model.Identity{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(cred.Password)) != nil {
		return model.Identity{}, ErrInvalidCredentials
	}
	return model.Identity{UID: acct.UID, Email: acct.Email, Role: acct.Role}, nil
}

// CreateUser stores a new account with a hashed password.
func (p *LocalProvider) CreateUser(ctx context.Context, email, password string, role model.Role) (string, error) {
	if len(password) < 6 {
		return "", fmt.Errorf("%w: password must be at least 6 characters", model.ErrInvalid)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	acct := model.Account{
		UID:          uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := model.Validate(acct); err != nil {
		return "", err
	}
	if err := p.accounts.CreateAccount(ctx, acct); err != nil {
		return "", err
	}
	return acct.UID, nil
}

// FirebaseProvider verifies Firebase ID tokens. The role lives in a custom
// claim set when the user is created.
type FirebaseProvider struct {
	client *fbauth.Client
}

// NewFirebaseProvider wraps an initialised auth client.
func NewFirebaseProvider(client *fbauth.Client) *FirebaseProvider {
	return &FirebaseProvider{client: client}
}

// SignIn verifies the ID token the client obtained from Firebase.
func (p *FirebaseProvider) SignIn(ctx context.Context, cred Credentials) (model.Identity, error) {
	if cred.IDToken == "" {
		if cred.Password != "" {
			return model.Identity{}, ErrUnsupported
		}
		return model.Identity{}, ErrInvalidCredentials
	}
	tok, err := p.client.VerifyIDToken(ctx, cred.IDToken)
	if err != nil {
		return model.Identity{}, errors.Join(ErrInvalidCredentials, err)
	}
	return identityFromClaims(tok.UID, tok.Claims)
}

// CreateUser creates the Firebase user and stamps its role claim.
func (p *FirebaseProvider) CreateUser(ctx context.Context, email, password string, role model.Role) (string, error) {
	params := (&fbauth.UserToCreate{}).Email(strings.ToLower(strings.TrimSpace(email))).Password(password)
	rec, err := p.client.CreateUser(ctx, params)
	if fbauth.IsEmailAlreadyExists(err) {
		return "", fmt.Errorf("%w: %s", model.ErrDuplicate, email)
	}
	if err != nil {
		return "", fmt.Errorf("create firebase user: %w", err)
	}
	if err := p.client.SetCustomUserClaims(ctx, rec.UID, map[string]interface{}{"role": string(role)}); err != nil {
		return "", fmt.Errorf("set role claim: %w", err)
	}
	return rec.UID, nil
}

func identityFromClaims(uid string, claims map[string]interface{}) (model.Identity, error) {
	role, _ := claims["role"].(string)
	email, _ := claims["email"].(string)
	id := model.Identity{UID: uid, Email: email, Role: model.Role(role)}
	if !id.Role.Valid() {
		return model.Identity{}, fmt.Errorf("%w: account has no role", ErrInvalidCredentials)
	}
	return id, nil
}

// EnsureAdmin creates the bootstrap admin account unless its email is taken.
func EnsureAdmin(ctx context.Context, p Provider, email, password string) (bool, error) {
	if email == "" || password == "" {
		return false, nil
	}
	_, err := p.CreateUser(ctx, email, password, model.RoleAdmin)
	if errors.Is(err, model.ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
