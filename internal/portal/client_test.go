package portal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"slotwatch/internal/config"
	"slotwatch/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.PortalConfig{
		BaseURL:        srv.URL,
		SlotsPath:      "/slots",
		EditFormPath:   "/booking/edit",
		ProfilePath:    "/profile",
		TimeoutSeconds: 5,
		RateRPS:        100,
		RateBurst:      100,
	}
	return NewClient(cfg, zerolog.Nop())
}

func TestFetchSlots(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/slots", r.URL.Path)
			assert.Equal(t, "07.08.2025", r.URL.Query().Get("date"))
			w.Write([]byte(`<button>19:00 - 20:00</button>`))
		}))

		body, err := client.FetchSlots(context.Background(), "07.08.2025")
		require.NoError(t, err)
		assert.Contains(t, body, "19:00")
	})

	t.Run("Unauthorized", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))

		_, err := client.FetchSlots(context.Background(), "07.08.2025")
		var perr *Error
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, KindClient, perr.Kind)
		assert.Equal(t, http.StatusUnauthorized, perr.StatusCode)
	})

	t.Run("ServerError", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))

		_, err := client.FetchSlots(context.Background(), "07.08.2025")
		var perr *Error
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, KindServer, perr.Kind)
	})

	t.Run("LoginPageInsteadOfSlots", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html><form id="loginForm" action="/login"></form></html>`))
		}))

		_, err := client.FetchSlots(context.Background(), "07.08.2025")
		var perr *Error
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, KindHTML, perr.Kind)
	})

	t.Run("ConnectionRefused", func(t *testing.T) {
		cfg := config.PortalConfig{
			BaseURL:        "http://127.0.0.1:1",
			SlotsPath:      "/slots",
			TimeoutSeconds: 1,
			RateRPS:        100,
			RateBurst:      100,
		}
		client := NewClient(cfg, zerolog.Nop())

		_, err := client.FetchSlots(context.Background(), "07.08.2025")
		require.Error(t, err)
		var perr *Error
		assert.False(t, errors.As(err, &perr), "transport failures stay untyped")
	})
}

func TestSubmitBooking(t *testing.T) {
	var gotSlot string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotSlot = r.PostFormValue(models.SlotField)
		w.Write([]byte("OK"))
	}))

	body := models.SubmitBody{Form: map[string]string{models.SlotField: "07.08.2025 19:00:00"}}
	text, err := client.SubmitBooking(context.Background(), client.baseURL+"/booking/update", body)
	require.NoError(t, err)
	assert.Equal(t, "OK", text)
	assert.Equal(t, "07.08.2025 19:00:00", gotSlot)
}

func TestFetchEditForm(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "TV42", r.URL.Query().Get("id"))
		w.Write([]byte(`<input name="DriverName" value="Сидоров" />`))
	}))

	body, err := client.FetchEditForm(context.Background(), "TV42")
	require.NoError(t, err)

	driver, _ := ExtractBookingMeta(body)
	assert.Equal(t, "Сидоров", driver)
}

func TestIsAuthenticated(t *testing.T) {
	t.Run("ValidSession", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<span class="user-name">ООО Транс-Лог</span>`))
		}))
		assert.True(t, client.IsAuthenticated(context.Background()))
		assert.Equal(t, "ООО Транс-Лог", client.CurrentUser(context.Background()))
	})

	t.Run("SessionGone", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<form id="loginForm" action="/login"></form>`))
		}))
		assert.False(t, client.IsAuthenticated(context.Background()))
		assert.Empty(t, client.CurrentUser(context.Background()))
	})
}

func TestSessionCookieAttached(t *testing.T) {
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("PortalSession"); err == nil {
			gotCookie = c.Value
		}
		w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	cfg := config.PortalConfig{
		BaseURL:        srv.URL,
		SlotsPath:      "/slots",
		TimeoutSeconds: 5,
		SessionCookie:  "PortalSession",
		SessionValue:   "abc123",
		RateRPS:        100,
		RateBurst:      100,
	}
	client := NewClient(cfg, zerolog.Nop())

	_, err := client.FetchSlots(context.Background(), "07.08.2025")
	require.NoError(t, err)
	assert.Equal(t, "abc123", gotCookie)
}
