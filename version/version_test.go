package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersion_PrefersTag(t *testing.T) {
	GitTag, GitHash = "v1.2.3", "0123456789abcdef"
	defer func() { GitTag, GitHash = "", "" }()

	assert.Equal(t, "v1.2.3", Version())
	assert.Equal(t, "vc-file-upload-client/v1.2.3", UserAgent())
}

func TestVersion_ShortHash(t *testing.T) {
	GitHash = "0123456789abcdef"
	defer func() { GitHash = "" }()

	assert.Equal(t, "0123456789ab", Version())
}

func TestVersion_Fallback(t *testing.T) {
	assert.NotEmpty(t, Version())
	assert.True(t, strings.HasPrefix(UserAgent(), "vc-file-upload-client/"))
}
