package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bluemap-render/internal/render"
)

func TestSubmitSendsExactBody(t *testing.T) {
	t.Parallel()

	var gotBody, gotType, gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotType = r.Header.Get("Content-Type")
		gotMethod = r.Method
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"type":"blue rendered","newpath":"blue/b.png","id":"j1"}`))
	}))
	defer srv.Close()

	token := "abc123"
	out, err := New(srv.URL+"/", srv.Client(), nil).Submit(context.Background(), render.Request{
		Token: &token, From: "a.pdf", To: "b.png", Preset: "fast",
	})
	require.NoError(t, err)
	assert.False(t, out.Failed)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, RenderPath, gotPath)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, `{"token":"abc123","from":"a.pdf","to":"b.png","preset":"fast"}`, gotBody)
}

func TestSubmitErrorEnvelope(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"error","kind":{"code":500}}`))
	}))
	defer srv.Close()

	out, err := New(srv.URL, nil, nil).Submit(context.Background(), render.Request{})
	require.NoError(t, err)
	require.True(t, out.Failed)
	assert.Equal(t, `{"code":500}`, string(out.Detail))
}

func TestSubmitNonJSONIsTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil, nil).Submit(context.Background(), render.Request{})
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}

func TestSubmitConnectionRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, nil, nil).Submit(context.Background(), render.Request{})
	require.Error(t, err)
	require.True(t, IsTransport(err))

	b, mErr := json.Marshal(err)
	require.NoError(t, mErr)
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Contains(t, decoded["message"], "POST "+RenderPath)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		raw        string
		wantFailed bool
		wantDetail string
		wantErr    bool
	}{
		{name: "rendered", raw: `{"type":"blue rendered"}`},
		{name: "unknown type is success", raw: `{"type":"something else"}`},
		{name: "empty object is success", raw: `{}`},
		{name: "error with kind", raw: `{"type":"error","kind":{"type":"queue full"}}`, wantFailed: true, wantDetail: `{"type":"queue full"}`},
		{name: "error without kind", raw: `{"type":"error"}`, wantFailed: true, wantDetail: `{"type":"error"}`},
		{name: "non-string type is success", raw: `{"type":5}`},
		{name: "string is success", raw: `"ok"`},
		{name: "array is success", raw: `[1]`},
		{name: "number is success", raw: `42`},
		{name: "error with null kind", raw: `{"type":"error","kind":null}`, wantFailed: true, wantDetail: `null`},
		{name: "null is undecodable", raw: `null`, wantErr: true},
		{name: "garbage", raw: `nope`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Classify([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsTransport(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFailed, out.Failed)
			if tt.wantFailed {
				assert.Equal(t, tt.wantDetail, string(out.Detail))
			}
		})
	}
}

func TestPresets(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PresetsPath, r.URL.Path)
		_, _ = w.Write([]byte(`{"type":"blue presets","presets":["fast","print"],"default":"fast"}`))
	}))
	defer srv.Close()

	names, def, err := New(srv.URL, nil, nil).Presets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"fast", "print"}, names)
	assert.Equal(t, "fast", def)
}

func TestPresetsUnexpectedEnvelope(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"type":"error","kind":{"type":"external"}}`))
	}))
	defer srv.Close()

	_, _, err := New(srv.URL, nil, nil).Presets(context.Background())
	require.Error(t, err)
	assert.False(t, IsTransport(err))
}

func TestTransportErrorUnwrap(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	err := &TransportError{Op: "x", Err: base}
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "x: boom", err.Error())
}
