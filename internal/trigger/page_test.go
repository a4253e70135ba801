package trigger

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatElapsed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		seconds int
		want    string
	}{
		{0, "00:00"},
		{3, "00:03"},
		{59, "00:59"},
		{60, "01:00"},
		{61, "01:01"},
		{600, "10:00"},
		{5999, "99:59"},
		{6000, "100:00"},
		{-5, "00:00"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, FormatElapsed(tt.seconds), "seconds=%d", tt.seconds)
	}
}

func TestFormatElapsedAlwaysPadded(t *testing.T) {
	t.Parallel()

	for s := 0; s < 100*60; s++ {
		got := FormatElapsed(s)
		require.Len(t, got, 5, "seconds=%d", s)
		require.Equal(t, byte(':'), got[2])
	}
}

func TestPageInitialState(t *testing.T) {
	t.Parallel()

	p := NewPage()
	require.False(t, p.Get(ElementRender).Hidden)
	require.False(t, p.Get(ElementRender).Disabled)
	for _, el := range []Element{ElementTimer, ElementFailed, ElementSuccess, ElementViewError, ElementReload} {
		require.True(t, p.Get(el).Hidden, "element %s", el)
	}
	require.Equal(t, "Reload page", p.Get(ElementReload).Text)
	require.Equal(t, ElementState{}, p.Get(Element("missing")))
}

func TestPageMutationsNotify(t *testing.T) {
	t.Parallel()

	p := NewPage()
	var calls atomic.Int32
	p.OnChange(func() { calls.Add(1) })

	p.Show(ElementTimer)
	p.SetText(ElementTimer, "x")
	p.Disable(ElementRender)
	p.SetValue(ElementPreset, "fast")

	require.EqualValues(t, 4, calls.Load())
	require.Equal(t, "x", p.Get(ElementTimer).Text)
	require.False(t, p.Get(ElementTimer).Hidden)
	require.True(t, p.Disabled(ElementRender))
	require.Equal(t, "fast", p.Value(ElementPreset))
}
