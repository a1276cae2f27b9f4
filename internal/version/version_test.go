package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMajorComponent(t *testing.T) {
	cases := map[string]string{
		"v2.3.1": "2",
		"1.0.0":  "1",
		"v10":    "10",
		"":       "",
		"dev":    "dev",
	}
	for in, want := range cases {
		assert.Equal(t, want, MajorComponent(in), "input %q", in)
	}
}
