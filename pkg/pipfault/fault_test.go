package pipfault_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/datawire/pipcache/pkg/pipfault"
)

func TestKindString(t *testing.T) {
	t.Parallel()
	cases := map[pipfault.Kind]string{
		pipfault.KindConfig:     "ConfigError",
		pipfault.KindValidation: "ValidationError",
		pipfault.KindMetadata:   "MetadataError",
		pipfault.KindFetch:      "FetchError",
		pipfault.KindMirror:     "MirrorError",
		pipfault.KindInternal:   "InternalError",
	}
	for kind, str := range cases {
		assert.Equal(t, str, kind.String())
	}
}

func TestErrorUnwrap(t *testing.T) {
	t.Parallel()
	inner := errors.New("boom")
	err := pipfault.Fetch("download %s: %w", "foo", inner)
	assert.True(t, errors.Is(err, inner))
	assert.Equal(t, "FetchError: download foo: boom", err.Error())
}

func TestIs(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("wrapped: %w", pipfault.Validation("no hash"))
	assert.True(t, pipfault.Is(err, pipfault.KindValidation))
	assert.False(t, pipfault.Is(err, pipfault.KindMirror))
	assert.False(t, pipfault.Is(errors.New("plain"), pipfault.KindMirror))
}
