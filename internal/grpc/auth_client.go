package grpc

import (
	"context"
	"errors"

	"github.com/golang/glog"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/reflect/protoreflect"

	"teams-chat/internal/auth"
)

// AuthClient wraps the auth-service gRPC API.
type AuthClient struct {
	conn grpc.ClientConnInterface
}

// NewAuthClient constructs the wrapper.
func NewAuthClient(conn grpc.ClientConnInterface) *AuthClient {
	return &AuthClient{conn: conn}
}

// ValidateToken verifies the token and returns the authenticated user id.
func (a *AuthClient) ValidateToken(ctx context.Context, token string) (int, error) {
	req := newMessage(validateTokenRequest)
	setField(req, "token", protoreflect.ValueOfString(token))
	resp := newMessage(validateTokenResponse)

	if err := a.conn.Invoke(ctx, validateTokenMethod, req, resp); err != nil {
		return 0, err
	}
	userID := getField(resp, "user_id").Int()
	if !getField(resp, "valid").Bool() || userID == 0 {
		return 0, auth.ErrInvalidToken
	}
	return int(userID), nil
}

// GetUser fetches the username of a user from auth-service.
func (a *AuthClient) GetUser(ctx context.Context, userID int) (string, error) {
	req := newMessage(getUserRequest)
	setField(req, "user_id", protoreflect.ValueOfInt64(int64(userID)))
	resp := newMessage(getUserResponse)

	if err := a.conn.Invoke(ctx, getUserMethod, req, resp); err != nil {
		return "", err
	}
	if getField(resp, "id").Int() == 0 {
		return "", errors.New("user not found")
	}
	return getField(resp, "username").String(), nil
}

// Authenticate implements auth.Authenticator on top of the remote service.
func (a *AuthClient) Authenticate(ctx context.Context, token string) (auth.Identity, error) {
	if token == "" {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	userID, err := a.ValidateToken(ctx, token)
	if err != nil {
		return auth.Identity{}, errors.Join(auth.ErrInvalidToken, err)
	}
	name, err := a.GetUser(ctx, userID)
	if err != nil {
		glog.Warningf("auth: get user %d: %v", userID, err)
	}
	return auth.Identity{UserID: userID, Username: name}, nil
}

var _ auth.Authenticator = (*AuthClient)(nil)
