package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/realchillguyclub/backend-sub000"
	"github.com/realchillguyclub/backend-sub000/internal/mocks"
	"github.com/realchillguyclub/backend-sub000/oauth"
	"github.com/realchillguyclub/backend-sub000/session"
)

func newMockProvider(id string) *mocks.IdentityProvider {
	return &mocks.IdentityProvider{ProviderID: id, AuthURL: "https://idp.example/" + id + "/authorize"}
}

type socialFixture struct {
	*engineFixture
	provider *mocks.IdentityProvider
	users    *mocks.UserProvider
}

func newSocialEngine(t *testing.T) *socialFixture {
	t.Helper()
	_, rdb := newTestRedis(t)
	sf := &socialFixture{
		provider: newMockProvider("kakao"),
		users:    &mocks.UserProvider{},
	}
	sf.engineFixture = newEngine(t, func(b *auth.Builder) {
		b.WithRedis(rdb).
			WithIdentityProviders(sf.provider).
			WithUserProvider(sf.users)
	})
	return sf
}

func (sf *socialFixture) completeCallback(t *testing.T, code string) string {
	t.Helper()
	ctx := context.Background()

	authz, err := sf.engine.BeginAuthorization(ctx, "kakao")
	require.NoError(t, err)
	require.Contains(t, authz.URL, "state="+authz.State)

	token := &oauth.ProviderToken{AccessToken: "provider-at-" + code, TokenType: "Bearer"}
	sf.provider.On("ExchangeCode", mock.Anything, code, mock.AnythingOfType("string")).Return(token, nil).Once()

	res := sf.engine.HandleCallback(ctx, "kakao", oauth.CallbackParams{Code: code, State: authz.State})
	require.NoError(t, res.Err)
	require.Equal(t, oauth.OutcomeSuccess, res.Outcome)
	return authz.State
}

func TestSocialLoginCreatesMemberOnFirstPoll(t *testing.T) {
	sf := newSocialEngine(t)
	ctx := context.Background()
	state := sf.completeCallback(t, "c1")

	user := &oauth.ProviderUser{ProviderID: "kakao", SocialID: "k-42", Email: "a@example.com", Name: "A"}
	sf.provider.On("FetchUser", mock.Anything, mock.Anything).Return(user, nil).Once()
	sf.users.On("FindBySocialID", mock.Anything, "kakao", "k-42").Return(auth.UserRecord{}, auth.ErrUserNotFound).Once()
	sf.users.On("CreateSocialUser", mock.Anything, auth.CreateUserInput{
		ProviderID: "kakao", SocialID: "k-42", Email: "a@example.com", Name: "A",
	}).Return(auth.UserRecord{UserID: "member-1"}, nil).Once()

	res, ok, err := sf.engine.PollPendingLogin(ctx, state, session.MobileAndroid, "fcm-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "member-1", res.UserID)
	require.True(t, res.NewUser)

	userID, err := sf.engine.ValidateAccess(res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "member-1", userID)

	// The pending login is single-use.
	again, ok, err := sf.engine.PollPendingLogin(ctx, state, session.MobileAndroid, "fcm-1")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, again)

	snap := sf.engine.MetricsSnapshot()
	require.EqualValues(t, 1, snap.Counters[auth.MetricSocialLoginNewUser])
	require.EqualValues(t, 1, snap.Counters[auth.MetricPollPending])

	sf.provider.AssertExpectations(t)
	sf.users.AssertExpectations(t)
}

func TestSocialLoginExistingMember(t *testing.T) {
	sf := newSocialEngine(t)
	state := sf.completeCallback(t, "c2")

	user := &oauth.ProviderUser{ProviderID: "kakao", SocialID: "k-7"}
	sf.provider.On("FetchUser", mock.Anything, mock.Anything).Return(user, nil).Once()
	sf.users.On("FindBySocialID", mock.Anything, "kakao", "k-7").Return(auth.UserRecord{UserID: "member-7"}, nil).Once()

	res, ok, err := sf.engine.PollPendingLogin(context.Background(), state, session.MobileDesktop, "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "member-7", res.UserID)
	require.False(t, res.NewUser)
	sf.users.AssertNotCalled(t, "CreateSocialUser", mock.Anything, mock.Anything)
}

func TestPollBeforeCallbackIsPending(t *testing.T) {
	sf := newSocialEngine(t)
	ctx := context.Background()

	authz, err := sf.engine.BeginAuthorization(ctx, "kakao")
	require.NoError(t, err)

	res, ok, err := sf.engine.PollPendingLogin(ctx, authz.State, session.MobileDesktop, "")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, res)
}

func TestPollRejectsInvalidDevice(t *testing.T) {
	sf := newSocialEngine(t)
	state := sf.completeCallback(t, "c3")

	_, _, err := sf.engine.PollPendingLogin(context.Background(), state, session.MobileIOS, "")
	require.ErrorIs(t, err, auth.ErrInvalidDevice)
	sf.provider.AssertNotCalled(t, "FetchUser", mock.Anything, mock.Anything)
}

func TestPollUserInfoFailure(t *testing.T) {
	sf := newSocialEngine(t)
	state := sf.completeCallback(t, "c4")

	sf.provider.On("FetchUser", mock.Anything, mock.Anything).Return(nil, errors.New("userinfo 502")).Once()

	_, ok, err := sf.engine.PollPendingLogin(context.Background(), state, session.MobileDesktop, "")
	require.False(t, ok)
	require.ErrorIs(t, err, auth.ErrOAuthExchange)
	require.EqualValues(t, 1, sf.engine.MetricsSnapshot().Counters[auth.MetricSocialLoginFailure])

	// The login stays claimable, so the next poll retries the lookup.
	user := &oauth.ProviderUser{ProviderID: "kakao", SocialID: "k-9"}
	sf.provider.On("FetchUser", mock.Anything, mock.Anything).Return(user, nil).Once()
	sf.users.On("FindBySocialID", mock.Anything, "kakao", "k-9").Return(auth.UserRecord{UserID: "member-9"}, nil).Once()

	res, ok, err := sf.engine.PollPendingLogin(context.Background(), state, session.MobileDesktop, "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "member-9", res.UserID)
	sf.provider.AssertExpectations(t)
}

func TestBeginAuthorizationUnknownProvider(t *testing.T) {
	sf := newSocialEngine(t)
	_, err := sf.engine.BeginAuthorization(context.Background(), "myspace")
	require.ErrorIs(t, err, auth.ErrUnknownProvider)
	require.Equal(t, []string{"kakao"}, sf.engine.Providers())
}

func TestHandleCallbackOutcomes(t *testing.T) {
	sf := newSocialEngine(t)
	ctx := context.Background()

	canceled := sf.engine.HandleCallback(ctx, "kakao", oauth.CallbackParams{Error: "access_denied"})
	require.Equal(t, oauth.OutcomeCanceled, canceled.Outcome)
	require.ErrorIs(t, canceled.Err, auth.ErrCanceled)

	unknown := sf.engine.HandleCallback(ctx, "kakao", oauth.CallbackParams{Code: "c", State: "never-issued"})
	require.Equal(t, oauth.OutcomeInvalidRequest, unknown.Outcome)
	require.ErrorIs(t, unknown.Err, auth.ErrInvalidRequest)

	authz, err := sf.engine.BeginAuthorization(ctx, "kakao")
	require.NoError(t, err)
	sf.provider.On("ExchangeCode", mock.Anything, "bad", mock.Anything).Return(nil, errors.New("invalid_grant")).Once()
	failed := sf.engine.HandleCallback(ctx, "kakao", oauth.CallbackParams{Code: "bad", State: authz.State})
	require.Equal(t, oauth.OutcomeError, failed.Outcome)
	require.ErrorIs(t, failed.Err, auth.ErrOAuthExchange)

	snap := sf.engine.MetricsSnapshot()
	require.EqualValues(t, 1, snap.Counters[auth.MetricOAuthCallbackCanceled])
	require.EqualValues(t, 1, snap.Counters[auth.MetricOAuthCallbackInvalid])
	require.EqualValues(t, 1, snap.Counters[auth.MetricOAuthCallbackError])
}

func TestSocialEngineRequiresUserProvider(t *testing.T) {
	_, rdb := newTestRedis(t)
	_, err := auth.New().
		WithConfig(testConfig()).
		WithStore(newTestStore()).
		WithRedis(rdb).
		WithIdentityProviders(newMockProvider("kakao")).
		Build()
	require.Error(t, err)
}
