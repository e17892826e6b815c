package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMatchStatus(t *testing.T) {
	for _, valid := range []string{"pending", "applied", "not_interested"} {
		status, err := ParseMatchStatus(valid)
		require.NoError(t, err)
		assert.Equal(t, MatchStatus(valid), status)
	}

	_, err := ParseMatchStatus("archived")
	assert.Error(t, err)
	_, err = ParseMatchStatus("")
	assert.Error(t, err)
}

func TestJobLocationString(t *testing.T) {
	job := &Job{City: "Berlin", Country: "Germany"}
	assert.Equal(t, "Berlin, Germany", job.LocationString())

	empty := &Job{}
	assert.Equal(t, "", empty.LocationString())
}
