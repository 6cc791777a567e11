package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReturnsNilWithoutURL(t *testing.T) {
	client, err := New(context.Background(), Config{})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewRejectsInvalidURL(t *testing.T) {
	_, err := New(context.Background(), Config{URL: "not a url://"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse redis URL")
}

func TestNilClientIsSafe(t *testing.T) {
	var client *Client
	assert.Error(t, client.Health(context.Background()))
	assert.NoError(t, client.Close())
}
