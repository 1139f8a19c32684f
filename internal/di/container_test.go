package di

import (
	"testing"

	"ieltsprep/internal/config"
	"ieltsprep/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetServiceAs(t *testing.T) {
	sc := NewServiceContainer(&config.Config{}, observability.NewLogger(nil))
	sc.services["answer"] = 42

	v, err := GetServiceAs[int](sc, "answer")
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = GetServiceAs[string](sc, "answer")
	assert.Error(t, err)

	_, err = GetServiceAs[int](sc, "missing")
	assert.Error(t, err)
}

func TestGetServiceNotFound(t *testing.T) {
	sc := NewServiceContainer(&config.Config{}, observability.NewLogger(nil))
	_, err := sc.GetService("gateway")
	assert.Error(t, err)
}
