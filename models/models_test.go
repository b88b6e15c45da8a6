package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Delete ")
	require.NoError(t, err)
	assert.Equal(t, ModeDelete, m)

	m, err = ParseMode("hide")
	require.NoError(t, err)
	assert.Equal(t, ModeHide, m)

	_, err = ParseMode("archive")
	assert.Error(t, err)
}

func TestTriggersRoundTrip(t *testing.T) {
	r := ReplyRule{TriggerWords: JoinTriggers([]string{" price", "", "cost "})}
	assert.Equal(t, "price,cost", r.TriggerWords)
	assert.Equal(t, []string{"price", "cost"}, r.Triggers())
	assert.Nil(t, ReplyRule{}.Triggers())
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "EAAGm0***", MaskToken("EAAGm0PX4ZCpsBAxyz"))
	assert.Equal(t, "***", MaskToken("abc"))
	assert.Equal(t, "", MaskToken(""))
}
