package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCatalogFallsBackToEnglish(t *testing.T) {
	c := New("fr")
	assert.Equal(t, "en", c.Locale())
	assert.Equal(t, "Lan accepted your connection request", c.Text(NotifyConnectionAccepted, "Lan"))
}

func TestCatalogVietnamese(t *testing.T) {
	c := New("vi")
	assert.Equal(t, "Lan đã từ chối lời mời kết nối của bạn", c.Text(NotifyConnectionRejected, "Lan"))
}

func TestCatalogEveryKeyTranslated(t *testing.T) {
	for key := range catalogs["en"] {
		_, ok := catalogs["vi"][key]
		assert.True(t, ok, "missing vi translation for %s", key)
	}
}

func TestCatalogUnknownKey(t *testing.T) {
	assert.Equal(t, "reason.mystery", New("en").Text("reason.mystery"))
}
