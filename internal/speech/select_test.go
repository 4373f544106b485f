package speech

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect_Sim(t *testing.T) {
	engine, err := Select(context.Background(), SelectorConfig{Engine: "sim"}, zerolog.Nop())

	require.NoError(t, err)
	assert.Equal(t, "sim", engine.Name())
}

func TestSelect_UnknownEngine(t *testing.T) {
	_, err := Select(context.Background(), SelectorConfig{Engine: "festival"}, zerolog.Nop())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "festival")
}

func TestSelect_HTTPExplicitURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	engine, err := Select(context.Background(), SelectorConfig{
		Engine:    "http",
		ServerURL: server.URL,
		Timeout:   time.Second,
	}, zerolog.Nop())

	require.NoError(t, err)
	assert.Equal(t, "http", engine.Name())
}

func TestSelect_HTTPNoServer(t *testing.T) {
	_, err := Select(context.Background(), SelectorConfig{
		Engine:     "http",
		ProbePorts: []int{1},
		Timeout:    500 * time.Millisecond,
	}, zerolog.Nop())

	assert.ErrorIs(t, err, ErrEngineUnavailable)
}

func TestSelect_AutoNeverFails(t *testing.T) {
	engine, err := Select(context.Background(), SelectorConfig{
		Engine:     "auto",
		ProbePorts: []int{1},
		Timeout:    500 * time.Millisecond,
	}, zerolog.Nop())

	require.NoError(t, err)
	assert.NotNil(t, engine)
}
