package browser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNamedKeysComplete(t *testing.T) {
	for _, name := range []string{
		"enter", "tab", "escape", "backspace", "delete",
		"up", "down", "left", "right", "home", "end", "space",
	} {
		spec, ok := namedKeys[name]
		require.True(t, ok, "missing named key %q", name)
		require.NotEmpty(t, spec.Key)
	}
}

func TestComboKey(t *testing.T) {
	cases := []struct {
		name     string
		wantKey  string
		wantCode string
		wantVK   int
	}{
		{"a", "a", "KeyA", 'A'},
		{"b", "b", "KeyB", 'B'},
		{"5", "5", "Digit5", '5'},
		{"enter", "Enter", "Enter", 13},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec, err := comboKey(tc.name)
			require.NoError(t, err)
			require.Equal(t, tc.wantKey, spec.Key)
			require.Equal(t, tc.wantCode, spec.Code)
			require.Equal(t, tc.wantVK, spec.VK)
		})
	}
}

func TestComboKeyRejectsUnknown(t *testing.T) {
	_, err := comboKey("notakey")
	require.Error(t, err)
	var cdpErr *CDPError
	require.ErrorAs(t, err, &cdpErr)
}
