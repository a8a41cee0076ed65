package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	s, err := NewI18nSupport("en")
	require.NoError(t, err)

	assert.Equal(t, "Location permission denied", s.T("en", "location.permission_denied", ""))
	assert.Equal(t, "定位权限被拒绝", s.T("zh", "location.permission_denied", ""))
	assert.Equal(t, "Database not initialized", s.T("", "store.not_initialized", ""))
}

func TestTranslateFallsBack(t *testing.T) {
	s, err := NewI18nSupport("en")
	require.NoError(t, err)

	assert.Equal(t, "Location permission denied", s.T("fr", "location.permission_denied", ""))
	assert.Equal(t, "raw reason", s.T("en", "no.such.key", "raw reason"))
	assert.Equal(t, "no.such.key", s.T("en", "no.such.key", ""))

	var nilSupport *I18nSupport
	assert.Equal(t, "fallback", nilSupport.T("en", "x", "fallback"))
}

func TestMatch(t *testing.T) {
	s, err := NewI18nSupport("en")
	require.NoError(t, err)

	assert.Equal(t, "zh", s.Match("zh-CN,zh;q=0.9,en;q=0.8"))
	assert.Equal(t, "en", s.Match("en-US"))
	assert.Equal(t, "en", s.Match("de-DE"))
	assert.Equal(t, "en", s.Match(""))
}

func TestBadDefaultLanguage(t *testing.T) {
	_, err := NewI18nSupport("not a tag!!")
	assert.Error(t, err)
}
