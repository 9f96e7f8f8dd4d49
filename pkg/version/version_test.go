package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/loctrail/pkg/version"
)

func TestString(t *testing.T) {
	version.InitBinaryVersion()

	assert.Contains(t, version.String(), "loctrail ")
	assert.Contains(t, version.String(), "commit: ")
	assert.NotEmpty(t, version.Version)
}
