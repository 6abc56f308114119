package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	From struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"from"`
	Subject          string `json:"subject"`
	Personalizations []struct {
		To []struct {
			Email string `json:"email"`
		} `json:"to"`
	} `json:"personalizations"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
}

func TestEmailNotifier(t *testing.T) {
	var got sentMail
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n, err := NewEmailNotifier(EmailConfig{
		APIKey:   "sg-key",
		From:     "scanner@example.com",
		FromName: "Momentum Watchlist",
		To:       []string{"a@example.com", "b@example.com"},
		Host:     srv.URL,
	})
	require.NoError(t, err)

	report := Report{
		Kind:    KindWatchlist,
		Subject: "Momentum Watchlist 2025-03-03: ABCD",
		Text:    "MOMENTUM WATCHLIST",
		HTML:    "<h1>Momentum Watchlist</h1>",
	}
	require.NoError(t, n.Send(context.Background(), report))

	assert.Equal(t, "scanner@example.com", got.From.Email)
	assert.Equal(t, "Momentum Watchlist", got.From.Name)
	assert.Equal(t, report.Subject, got.Subject)
	require.Len(t, got.Personalizations, 1)
	require.Len(t, got.Personalizations[0].To, 2)
	assert.Equal(t, "b@example.com", got.Personalizations[0].To[1].Email)
	require.Len(t, got.Content, 2)
	assert.Equal(t, "text/plain", got.Content[0].Type)
	assert.Equal(t, report.Text, got.Content[0].Value)
	assert.Equal(t, "text/html", got.Content[1].Type)
	assert.Equal(t, report.HTML, got.Content[1].Value)
}

func TestEmailNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer srv.Close()

	n, err := NewEmailNotifier(EmailConfig{APIKey: "k", From: "f@example.com", To: []string{"t@example.com"}, Host: srv.URL})
	require.NoError(t, err)

	err = n.Send(context.Background(), Report{Subject: "x", Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email")
}

func TestNewEmailNotifier_RequiresConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  EmailConfig
		want string
	}{
		{"no key", EmailConfig{From: "f@example.com", To: []string{"t@example.com"}}, "SENDGRID_API_KEY"},
		{"no sender", EmailConfig{APIKey: "k", To: []string{"t@example.com"}}, "FROM_EMAIL"},
		{"no recipients", EmailConfig{APIKey: "k", From: "f@example.com"}, "TO_EMAIL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEmailNotifier(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
