package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/mavasquez/ferrevia-backend/pkg/errors"
)

type samplePayload struct {
	Name  string `json:"name" validate:"required,max=10"`
	Count int    `json:"count" validate:"gt=0"`
}

func decode(t *testing.T, body string) error {
	t.Helper()
	r := httptest.NewRequest("POST", "/", strings.NewReader(body))
	var dest samplePayload
	return DecodeJSONBody(r, &dest)
}

func TestDecodeJSONBody(t *testing.T) {
	t.Parallel()

	require.NoError(t, decode(t, `{"name":"taladro","count":2}`))

	err := decode(t, `{"name":"taladro","count":2,"extra":true}`)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "unknown fields must be rejected")
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	err = decode(t, `{"count":-1}`)
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["name"])
	assert.Equal(t, "must be greater than 0", details["count"])

	err = decode(t, `not json`)
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestParseQueryInt(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/?limit=30", nil)
	value, err := ParseQueryInt(r, "limit", 20, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 30, value)

	value, err = ParseQueryInt(r, "offset", 5, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, 5, value, "missing parameter falls back to the default")

	r = httptest.NewRequest("GET", "/?limit=1000", nil)
	_, err = ParseQueryInt(r, "limit", 20, 1, 100)
	require.Error(t, err)

	r = httptest.NewRequest("GET", "/?limit=abc", nil)
	_, err = ParseQueryInt(r, "limit", 20, 1, 100)
	require.Error(t, err)
}
