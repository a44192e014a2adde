// Package bankfeed fetches account statements from the supported Brazilian
// bank APIs and normalizes them into the canonical transaction shape used by
// the reconciliation engine. Each bank speaks its own dialect (field names,
// date formats, decimal conventions, debit/credit markers); the dialects
// translate, the package applies the shared normalization rules.
package bankfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bpofinanceiro/reconciliation-service/internal/config"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/bank"
)

// StatementLine is one normalized line of a fetched statement. Amounts are
// signed (debits negative) and value dates are UTC midnight.
type StatementLine struct {
	ExternalID         string
	Amount             decimal.Decimal
	Currency           string
	ValueDate          time.Time
	Description        string
	ReversesExternalID *string
	Settled            bool
}

// MalformedLine carries a statement line that failed normalization along
// with the raw payload so an operator can inspect it.
type MalformedLine struct {
	Raw json.RawMessage
	Err bank.MalformedStatementError
}

// Statement is the result of one fetch. Malformed lines never block the
// well-formed ones.
type Statement struct {
	Lines     []StatementLine
	Malformed []MalformedLine
}

// Client fetches statement lines for one bank
type Client interface {
	Bank() bank.Bank
	FetchStatement(ctx context.Context, accountRef string, since time.Time) (*Statement, error)
}

// dialect translates one bank's wire format into normalized statement lines
type dialect interface {
	statementPath(accountRef string, since time.Time) string
	decode(body []byte) ([]StatementLine, []MalformedLine, error)
}

type httpClient struct {
	bank    bank.Bank
	baseURL string
	dialect dialect
	http    *http.Client
	logger  *slog.Logger
}

func newHTTPClient(b bank.Bank, cfg config.BankConfig, d dialect, logger *slog.Logger) Client {
	return &httpClient{
		bank:    b,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		dialect: d,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

func (c *httpClient) Bank() bank.Bank { return c.bank }

// FetchStatement retrieves the statement since the given instant. Transport
// and server failures are transient; a body the dialect cannot read at all
// is permanent and routed to the operator queue by the caller.
func (c *httpClient) FetchStatement(ctx context.Context, accountRef string, since time.Time) (*Statement, error) {
	endpoint := c.baseURL + c.dialect.statementPath(accountRef, since)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build statement request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, bank.AdapterUnavailableError{Bank: c.bank, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, bank.AdapterUnavailableError{Bank: c.bank, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, bank.AdapterUnavailableError{
			Bank: c.bank,
			Err:  fmt.Errorf("statement endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	lines, malformed, err := c.dialect.decode(body)
	if err != nil {
		return nil, bank.MalformedStatementError{Bank: c.bank, Line: 0, Reason: err.Error()}
	}

	if len(malformed) > 0 {
		c.logger.Warn("Statement contained malformed lines",
			"bank", c.bank,
			"account_ref", accountRef,
			"malformed", len(malformed),
			"parsed", len(lines))
	}

	return &Statement{Lines: lines, Malformed: malformed}, nil
}

// Registry holds one configured client per supported bank
type Registry struct {
	clients map[bank.Bank]Client
}

// NewRegistry builds the bank client registry from configuration
func NewRegistry(cfg *config.BanksConfig, logger *slog.Logger) *Registry {
	return &Registry{
		clients: map[bank.Bank]Client{
			bank.BancoDoBrasil: newHTTPClient(bank.BancoDoBrasil, cfg.BancoDoBrasil, bancoDoBrasilDialect{}, logger),
			bank.Itau:          newHTTPClient(bank.Itau, cfg.Itau, itauDialect{}, logger),
			bank.Bradesco:      newHTTPClient(bank.Bradesco, cfg.Bradesco, bradescoDialect{}, logger),
			bank.Santander:     newHTTPClient(bank.Santander, cfg.Santander, santanderDialect{}, logger),
			bank.OpenBanking:   newHTTPClient(bank.OpenBanking, cfg.OpenBanking, openBankingDialect{}, logger),
		},
	}
}

// Client returns the client for a bank
func (r *Registry) Client(b bank.Bank) (Client, error) {
	client, ok := r.clients[b]
	if !ok {
		return nil, fmt.Errorf("no statement client registered for bank %s", b)
	}
	return client, nil
}
