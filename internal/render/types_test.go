package render

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRequestEncodesFieldsInWireOrder(t *testing.T) {
	t.Parallel()

	token := "abc123"
	body, err := json.Marshal(Request{Token: &token, From: "a.pdf", To: "b.png", Preset: "fast"})
	require.NoError(t, err)
	require.JSONEq(t, `{"token":"abc123","from":"a.pdf","to":"b.png","preset":"fast"}`, string(body))
	require.Equal(t, `{"token":"abc123","from":"a.pdf","to":"b.png","preset":"fast"}`, string(body))

	body, err = json.Marshal(Request{From: "a", To: "b", Preset: "p"})
	require.NoError(t, err)
	require.Equal(t, `{"token":null,"from":"a","to":"b","preset":"p"}`, string(body))
}

func TestErrorResponseShape(t *testing.T) {
	t.Parallel()

	body, err := json.Marshal(ErrorResponse(KindExternal, "chrome crashed"))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"error","kind":{"type":"external","content":"chrome crashed"}}`, string(body))

	body, err = json.Marshal(ErrorResponse(KindPathOccupied, ""))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"error","kind":{"type":"path occupied"}}`, string(body))
}

func TestFailureErrorAndJSON(t *testing.T) {
	t.Parallel()

	f := External("boom")
	require.Equal(t, "external: boom", f.Error())
	require.Equal(t, "queue full", NewFailure(KindQueueFull).Error())

	body, err := json.Marshal(f)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"external","content":"boom"}`, string(body))
}

func TestJobStatusIsTerminal(t *testing.T) {
	t.Parallel()

	require.False(t, JobStatusQueued.IsTerminal())
	require.False(t, JobStatusRunning.IsTerminal())
	require.True(t, JobStatusSucceeded.IsTerminal())
	require.True(t, JobStatusFailed.IsTerminal())
	require.True(t, JobStatusTimedOut.IsTerminal())
}

func TestPresetDefaults(t *testing.T) {
	t.Parallel()

	p := Preset{Name: "fast"}.WithDefaults()
	require.Equal(t, FormatPNG, p.Format)
	require.EqualValues(t, 1280, p.Width)
	require.EqualValues(t, 720, p.Height)
	require.Equal(t, 1.0, p.Scale)
	require.Equal(t, 90, p.Quality)
	require.Equal(t, 500*time.Millisecond, p.Wait)
	require.NotNil(t, p.FullPage)
	require.True(t, *p.FullPage)
	require.Equal(t, "image/png", p.ContentType())

	full := false
	p = Preset{Format: FormatPDF, Quality: 150, FullPage: &full}.WithDefaults()
	require.Equal(t, 90, p.Quality)
	require.False(t, *p.FullPage)
	require.Equal(t, "application/pdf", p.ContentType())
	require.Equal(t, "image/jpeg", Preset{Format: FormatJPEG}.ContentType())
}
