// File: internal/browser/pagetype_test.go
package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchPage(t *testing.T) {
	t.Run("each match string resolves its own type", func(t *testing.T) {
		for _, pm := range pageMatches {
			got, ok := matchPage("<html><body>" + pm.Match + "</body></html>")
			require.True(t, ok, "expected a match for %s", pm.Type)
			assert.Equal(t, pm.Type, got)
		}
	})

	t.Run("unrelated content matches nothing", func(t *testing.T) {
		_, ok := matchPage("<html><body>Добро пожаловать куда-то ещё</body></html>")
		assert.False(t, ok)
	})

	t.Run("first match wins on combined content", func(t *testing.T) {
		// The SMS offer screen also contains the word for password in its
		// fine print on some variants; the table order decides.
		got, ok := matchPage("Мы отправим вам СМС-код ... Пароль")
		require.True(t, ok)
		assert.Equal(t, PageSMSOffer, got)
	})
}

func TestPageTypeTemplate(t *testing.T) {
	t.Run("renderable types have templates", func(t *testing.T) {
		for _, pt := range []PageType{PagePhone, PagePassword, PageSMSCode, PageCreateOTP, PageOTP, PageExpenses} {
			id, ok := pt.TemplateID()
			require.True(t, ok, "%s should be renderable", pt)
			assert.NotEmpty(t, id)
		}
	})

	t.Run("interstitials have no template", func(t *testing.T) {
		for _, pt := range []PageType{PageSMSOffer, PageControlQuestions} {
			_, ok := pt.TemplateID()
			assert.False(t, ok, "%s must never be rendered", pt)
			assert.True(t, pt.Interstitial())
		}
	})
}

func TestParsePageType(t *testing.T) {
	for pt, name := range pageNames {
		if pt == PageUnknown {
			continue
		}
		got, err := ParsePageType(name)
		require.NoError(t, err)
		assert.Equal(t, pt, got)
	}

	_, err := ParsePageType("NOT_A_PAGE")
	assert.Error(t, err)

	_, err = ParsePageType("UNKNOWN")
	assert.Error(t, err, "the unknown sentinel must not round-trip")
}
