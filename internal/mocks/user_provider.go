package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	auth "github.com/realchillguyclub/backend-sub000"
)

// UserProvider is a testify double for auth.UserProvider.
type UserProvider struct {
	mock.Mock
}

var _ auth.UserProvider = (*UserProvider)(nil)

func (m *UserProvider) FindBySocialID(ctx context.Context, providerID, socialID string) (auth.UserRecord, error) {
	args := m.Called(ctx, providerID, socialID)
	return args.Get(0).(auth.UserRecord), args.Error(1)
}

func (m *UserProvider) CreateSocialUser(ctx context.Context, input auth.CreateUserInput) (auth.UserRecord, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(auth.UserRecord), args.Error(1)
}
