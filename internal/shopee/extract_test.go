package shopee

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	body, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return body
}

func extractFirst(extractors []NameExtractor, body []byte) (string, bool) {
	for _, ex := range extractors {
		if name, ok := ex.Extract(body); ok {
			return name, true
		}
	}
	return "", false
}

func TestPrimaryExtractorsOnFixtures(t *testing.T) {
	tests := []struct {
		fixture string
		want    string
		found   bool
	}{
		{fixture: "creator_live_list.html", want: "ร้านแม่มณี & ลูก", found: true},
		{fixture: "embedded_state.html", found: false},
		{fixture: "login_wall.html", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.fixture, func(t *testing.T) {
			name, ok := extractFirst(PrimaryExtractors(), readFixture(t, tt.fixture))
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, name)
		})
	}
}

func TestSecondaryExtractorsOnFixtures(t *testing.T) {
	tests := []struct {
		fixture string
		want    string
		found   bool
	}{
		{fixture: "embedded_state.html", want: "ร้านแม่มณี / shop", found: true},
		{fixture: "username_only.html", want: "plain_seller", found: true},
		{fixture: "login_wall.html", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.fixture, func(t *testing.T) {
			name, ok := extractFirst(SecondaryExtractors(), readFixture(t, tt.fixture))
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, name)
		})
	}
}

func TestClassNameExtractorTakesFirstElement(t *testing.T) {
	body := []byte(`<span class="_nickName_a">first</span><span class="_nickName_b">second</span>`)
	name, ok := NewClassNameExtractor(NicknameClassFragment).Extract(body)
	require.True(t, ok)
	assert.Equal(t, "first", name)
}

func TestJSONFieldExtractorDecodesEscapes(t *testing.T) {
	body := []byte(`{"nick_name":"ร้าน \"A\""}`)
	name, ok := NewJSONFieldExtractor("nick_name").Extract(body)
	require.True(t, ok)
	assert.Equal(t, `ร้าน "A"`, name)
}

func TestJSONFieldExtractorIgnoresSimilarKeys(t *testing.T) {
	body := []byte(`{"shop_username":"nope"}`)
	_, ok := NewJSONFieldExtractor("username").Extract(body)
	assert.False(t, ok)
}
