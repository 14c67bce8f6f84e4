package momo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedTokenSourceRefreshesOnlyWhenExpired(t *testing.T) {
	fetches := 0
	fetch := func(ctx context.Context) (Token, error) {
		fetches++
		return Token{AccessToken: "tok", ExpiresIn: 3600}, nil
	}

	src := NewCachedTokenSource(fetch, time.Minute)

	for i := 0; i < 5; i++ {
		tok, err := src.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok", tok)
	}
	assert.Equal(t, 1, fetches)
}

func TestCachedTokenSourceRefetchesExpired(t *testing.T) {
	fetches := 0
	fetch := func(ctx context.Context) (Token, error) {
		fetches++
		// expires immediately once the margin is subtracted
		return Token{AccessToken: "tok", ExpiresIn: 1}, nil
	}

	src := NewCachedTokenSource(fetch, time.Minute)

	_, err := src.Token(context.Background())
	require.NoError(t, err)
	_, err = src.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, fetches)
}

func TestCachedTokenSourcePropagatesFetchError(t *testing.T) {
	wantErr := &AuthError{Status: 401, Body: "denied"}
	src := NewCachedTokenSource(func(ctx context.Context) (Token, error) {
		return Token{}, wantErr
	}, time.Minute)

	_, err := src.Token(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 401, authErr.Status)
}

func TestFreshTokenSourceFetchesEveryCall(t *testing.T) {
	fetches := 0
	src := &freshTokenSource{fetch: func(ctx context.Context) (Token, error) {
		fetches++
		return Token{AccessToken: "tok", ExpiresIn: 3600}, nil
	}}

	for i := 0; i < 3; i++ {
		_, err := src.Token(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 3, fetches)
}

func TestTokenTTLDefault(t *testing.T) {
	assert.Equal(t, time.Hour, Token{}.TTL())
	assert.Equal(t, 90*time.Second, Token{ExpiresIn: 90}.TTL())
}

func TestCachedTokenSourceDoesNotCacheFailure(t *testing.T) {
	fetches := 0
	src := NewCachedTokenSource(func(ctx context.Context) (Token, error) {
		fetches++
		if fetches == 1 {
			return Token{}, errors.New("network down")
		}
		return Token{AccessToken: "tok", ExpiresIn: 3600}, nil
	}, time.Minute)

	_, err := src.Token(context.Background())
	require.Error(t, err)

	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)
}
