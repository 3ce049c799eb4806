package lib

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	src := "fleet-metrics-2023-03-03T13:57:52.log"
	exp := "fleet-metrics-2023-03-03T13-57-52.log"
	res := SanitizeFilename(src)
	assert.Equal(t, exp, res)
}
