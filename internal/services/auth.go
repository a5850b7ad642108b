package services

import (
	"context"
	"errors"

	"github.com/tjfontaine/memories-gateway/internal/core/ports"
	"github.com/tjfontaine/memories-gateway/internal/rpc"
)

// AuthService covers the UserAuthentication backend concept.
type AuthService struct {
	rpc ports.Invoker
}

func NewAuthService(inv ports.Invoker) *AuthService {
	return &AuthService{rpc: inv}
}

type userResult struct {
	User ID `json:"user"`
}

// Register creates an account and returns its user id.
func (s *AuthService) Register(ctx context.Context, username, password string) (ID, error) {
	res, err := rpc.Action[userResult](ctx, s.rpc, "/UserAuthentication/register", ports.Payload{
		"username": username,
		"password": password,
	})
	return res.User, err
}

// Login authenticates and returns the user id.
func (s *AuthService) Login(ctx context.Context, username, password string) (ID, error) {
	res, err := rpc.Action[userResult](ctx, s.rpc, "/UserAuthentication/authenticate", ports.Payload{
		"username": username,
		"password": password,
	})
	return res.User, err
}

func (s *AuthService) ChangePhoto(ctx context.Context, user ID, url string) error {
	_, err := rpc.Action[Empty](ctx, s.rpc, "/UserAuthentication/changePhoto", ports.Payload{
		"user":      user,
		"new_photo": url,
	})
	return err
}

func (s *AuthService) UserExists(ctx context.Context, user ID) (bool, error) {
	res, err := rpc.Query[struct {
		Exists bool `json:"exists"`
	}](ctx, s.rpc, "/UserAuthentication/_userExists", ports.Payload{"user": user})
	return res.Exists, err
}

// GetUserByUsername returns the user id, or "" if no such user exists.
// Both a null userId and an empty result array mean no user.
func (s *AuthService) GetUserByUsername(ctx context.Context, username string) (ID, error) {
	res, err := rpc.Query[struct {
		UserID *ID `json:"userId"`
	}](ctx, s.rpc, "/UserAuthentication/_getUserByUsername", ports.Payload{"username": username})
	if errors.Is(err, rpc.ErrEmptyResult) {
		return "", nil
	}
	if err != nil || res.UserID == nil {
		return "", err
	}
	return *res.UserID, nil
}
