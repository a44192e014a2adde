package bankfeed

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpofinanceiro/reconciliation-service/internal/config"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/bank"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return newHTTPClient(bank.Itau, config.BankConfig{
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
	}, itauDialect{}, slog.Default())
}

func TestHTTPClient_FetchStatement(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("fetches and normalizes a statement", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/itau/v2/contas/9876-5/extrato", r.URL.Path)
			assert.Equal(t, "2026-03-01", r.URL.Query().Get("desde"))
			w.Write([]byte(`{"transacoes": [
				{"codigo": "it-1", "montante": "-100.00", "data": "2026-03-10", "descricao": "PIX", "confirmado": true}
			]}`))
		})

		statement, err := client.FetchStatement(context.Background(), "9876-5", since)
		require.NoError(t, err)
		require.Len(t, statement.Lines, 1)
		assert.Empty(t, statement.Malformed)
		assert.Equal(t, "it-1", statement.Lines[0].ExternalID)
	})

	t.Run("server error is retryable", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := client.FetchStatement(context.Background(), "9876-5", since)
		require.Error(t, err)

		var unavailable bank.AdapterUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.True(t, unavailable.Retryable())
	})

	t.Run("unreachable host is retryable", func(t *testing.T) {
		client := newHTTPClient(bank.Itau, config.BankConfig{
			BaseURL: "http://127.0.0.1:1",
			Timeout: 500 * time.Millisecond,
		}, itauDialect{}, slog.Default())

		_, err := client.FetchStatement(context.Background(), "9876-5", since)
		require.Error(t, err)

		var unavailable bank.AdapterUnavailableError
		assert.ErrorAs(t, err, &unavailable)
	})

	t.Run("unreadable body is permanent", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>maintenance</html>"))
		})

		_, err := client.FetchStatement(context.Background(), "9876-5", since)
		require.Error(t, err)

		var malformed bank.MalformedStatementError
		require.ErrorAs(t, err, &malformed)
		assert.False(t, malformed.Retryable())
	})
}

func TestRegistry(t *testing.T) {
	cfg := &config.BanksConfig{
		BancoDoBrasil: config.BankConfig{BaseURL: "http://bb", Timeout: time.Second},
		Itau:          config.BankConfig{BaseURL: "http://itau", Timeout: time.Second},
		Bradesco:      config.BankConfig{BaseURL: "http://bradesco", Timeout: time.Second},
		Santander:     config.BankConfig{BaseURL: "http://santander", Timeout: time.Second},
		OpenBanking:   config.BankConfig{BaseURL: "http://ob", Timeout: time.Second},
	}
	registry := NewRegistry(cfg, slog.Default())

	for _, b := range []bank.Bank{bank.BancoDoBrasil, bank.Itau, bank.Bradesco, bank.Santander, bank.OpenBanking} {
		client, err := registry.Client(b)
		require.NoError(t, err)
		assert.Equal(t, b, client.Bank())
	}

	_, err := registry.Client(bank.Bank("NUBANK"))
	assert.Error(t, err)
}
