package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserAgent(t *testing.T) {
	t.Parallel()

	assert.True(t, strings.HasPrefix(UserAgent(), "deploylog/"+Version+" ("))
	assert.True(t, IsDevBuild())
}
