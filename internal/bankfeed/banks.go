package bankfeed

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bpofinanceiro/reconciliation-service/internal/domain/bank"
)

// Dialects for the five supported statement feeds. Each bank disagrees with
// the others about field names, date layouts, amount encoding and how a
// reversal points at the line it voids; everything after decode is uniform.

// Banco do Brasil: decimal-comma amounts, D/C indicator, dd/MM/yyyy dates

type bancoDoBrasilDialect struct{}

type bbLine struct {
	ID            string `json:"id"`
	Valor         string `json:"valor"`
	Tipo          string `json:"tipo"` // "D" debit, "C" credit
	DataMovimento string `json:"dataMovimento"`
	Historico     string `json:"historico"`
	EstornoDe     string `json:"estornoDe"`
	Situacao      string `json:"situacao"` // "EFETIVADO" once settled
}

func (bancoDoBrasilDialect) statementPath(accountRef string, since time.Time) string {
	return fmt.Sprintf("/extratos/v1/conta/%s?dataInicio=%s",
		url.PathEscape(accountRef), since.Format("02.01.2006"))
}

func (bancoDoBrasilDialect) decode(body []byte) ([]StatementLine, []MalformedLine, error) {
	var envelope struct {
		Lancamentos []json.RawMessage `json:"lancamentos"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, nil, fmt.Errorf("unreadable statement body: %w", err)
	}

	return decodeLines(bank.BancoDoBrasil, envelope.Lancamentos, func(raw json.RawMessage) (StatementLine, error) {
		var l bbLine
		if err := json.Unmarshal(raw, &l); err != nil {
			return StatementLine{}, err
		}
		if l.ID == "" {
			return StatementLine{}, fmt.Errorf("missing line id")
		}

		amount, err := parseBrazilianDecimal(l.Valor)
		if err != nil {
			return StatementLine{}, err
		}
		amount, err = signFromIndicator(amount, l.Tipo, "D")
		if err != nil {
			return StatementLine{}, err
		}
		valueDate, err := parseValueDate(l.DataMovimento, "02/01/2006")
		if err != nil {
			return StatementLine{}, err
		}

		return StatementLine{
			ExternalID:         l.ID,
			Amount:             amount,
			Currency:           "BRL",
			ValueDate:          valueDate,
			Description:        l.Historico,
			ReversesExternalID: reversalRef(l.EstornoDe),
			Settled:            l.Situacao == "EFETIVADO",
		}, nil
	})
}

// Itau: signed dot-decimal amounts, ISO dates, explicit confirmation flag

type itauDialect struct{}

type itauLine struct {
	Codigo            string `json:"codigo"`
	Montante          string `json:"montante"` // already signed
	Moeda             string `json:"moeda"`
	Data              string `json:"data"`
	Descricao         string `json:"descricao"`
	ReferenciaEstorno string `json:"referenciaEstorno"`
	Confirmado        bool   `json:"confirmado"`
}

func (itauDialect) statementPath(accountRef string, since time.Time) string {
	return fmt.Sprintf("/itau/v2/contas/%s/extrato?desde=%s",
		url.PathEscape(accountRef), since.Format("2006-01-02"))
}

func (itauDialect) decode(body []byte) ([]StatementLine, []MalformedLine, error) {
	var envelope struct {
		Transacoes []json.RawMessage `json:"transacoes"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, nil, fmt.Errorf("unreadable statement body: %w", err)
	}

	return decodeLines(bank.Itau, envelope.Transacoes, func(raw json.RawMessage) (StatementLine, error) {
		var l itauLine
		if err := json.Unmarshal(raw, &l); err != nil {
			return StatementLine{}, err
		}
		if l.Codigo == "" {
			return StatementLine{}, fmt.Errorf("missing line id")
		}

		amount, err := parsePlainDecimal(l.Montante)
		if err != nil {
			return StatementLine{}, err
		}
		valueDate, err := parseValueDate(l.Data, "2006-01-02")
		if err != nil {
			return StatementLine{}, err
		}

		return StatementLine{
			ExternalID:         l.Codigo,
			Amount:             amount,
			Currency:           defaultCurrency(l.Moeda),
			ValueDate:          valueDate,
			Description:        l.Descricao,
			ReversesExternalID: reversalRef(l.ReferenciaEstorno),
			Settled:            l.Confirmado,
		}, nil
	})
}

// Bradesco: integer cents, DEBITO/CREDITO nature, dd-MM-yyyy dates

type bradescoDialect struct{}

type bradescoLine struct {
	Sequencial    string `json:"sequencial"`
	ValorCentavos int64  `json:"valorCentavos"`
	Natureza      string `json:"natureza"` // "DEBITO" or "CREDITO"
	DataLancto    string `json:"dataLancamento"`
	Complemento   string `json:"complemento"`
	EstornoRef    string `json:"estornoRef"`
	Processado    bool   `json:"processado"`
}

func (bradescoDialect) statementPath(accountRef string, since time.Time) string {
	return fmt.Sprintf("/bradesco/v1/extrato/%s?inicio=%s",
		url.PathEscape(accountRef), since.Format("02-01-2006"))
}

func (bradescoDialect) decode(body []byte) ([]StatementLine, []MalformedLine, error) {
	var envelope struct {
		Lancamentos []json.RawMessage `json:"lancamentos"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, nil, fmt.Errorf("unreadable statement body: %w", err)
	}

	return decodeLines(bank.Bradesco, envelope.Lancamentos, func(raw json.RawMessage) (StatementLine, error) {
		var l bradescoLine
		if err := json.Unmarshal(raw, &l); err != nil {
			return StatementLine{}, err
		}
		if l.Sequencial == "" {
			return StatementLine{}, fmt.Errorf("missing line id")
		}
		if l.ValorCentavos <= 0 {
			return StatementLine{}, fmt.Errorf("invalid amount in cents: %d", l.ValorCentavos)
		}

		amount, err := signFromIndicator(decimal.New(l.ValorCentavos, -2), l.Natureza, "DEBITO")
		if err != nil {
			return StatementLine{}, err
		}
		valueDate, err := parseValueDate(l.DataLancto, "02-01-2006")
		if err != nil {
			return StatementLine{}, err
		}

		return StatementLine{
			ExternalID:         l.Sequencial,
			Amount:             amount,
			Currency:           "BRL",
			ValueDate:          valueDate,
			Description:        l.Complemento,
			ReversesExternalID: reversalRef(l.EstornoRef),
			Settled:            l.Processado,
		}, nil
	})
}

// Santander: decimal-comma amounts with D/C flag, ISO timestamps

type santanderDialect struct{}

type santanderLine struct {
	NSU          string `json:"nsu"`
	Valor        string `json:"valor"`
	DebitoCredit string `json:"debitoCredito"` // "DB" or "CR"
	DataHora     string `json:"dataHora"`
	Historico    string `json:"historico"`
	NSUEstornado string `json:"nsuEstornado"`
	Status       string `json:"status"` // "LIQUIDADO" once settled
}

func (santanderDialect) statementPath(accountRef string, since time.Time) string {
	return fmt.Sprintf("/santander/v1/contas/%s/movimentos?desde=%s",
		url.PathEscape(accountRef), since.Format(time.RFC3339))
}

func (santanderDialect) decode(body []byte) ([]StatementLine, []MalformedLine, error) {
	var envelope struct {
		Movimentos []json.RawMessage `json:"movimentos"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, nil, fmt.Errorf("unreadable statement body: %w", err)
	}

	return decodeLines(bank.Santander, envelope.Movimentos, func(raw json.RawMessage) (StatementLine, error) {
		var l santanderLine
		if err := json.Unmarshal(raw, &l); err != nil {
			return StatementLine{}, err
		}
		if l.NSU == "" {
			return StatementLine{}, fmt.Errorf("missing line id")
		}

		amount, err := parseBrazilianDecimal(l.Valor)
		if err != nil {
			return StatementLine{}, err
		}
		amount, err = signFromIndicator(amount, l.DebitoCredit, "DB")
		if err != nil {
			return StatementLine{}, err
		}
		valueDate, err := parseValueDate(l.DataHora, time.RFC3339)
		if err != nil {
			return StatementLine{}, err
		}

		return StatementLine{
			ExternalID:         l.NSU,
			Amount:             amount,
			Currency:           "BRL",
			ValueDate:          valueDate,
			Description:        l.Historico,
			ReversesExternalID: reversalRef(l.NSUEstornado),
			Settled:            l.Status == "LIQUIDADO",
		}, nil
	})
}

// Open Banking Brasil: Open Finance transaction schema

type openBankingDialect struct{}

type openBankingLine struct {
	TransactionID   string `json:"transactionId"`
	Amount          string `json:"amount"`
	Currency        string `json:"transactionCurrency"`
	CreditDebitType string `json:"creditDebitType"` // "DEBITO" or "CREDITO"
	TransactionDate string `json:"transactionDate"`
	TransactionInfo string `json:"transactionInformation"`
	ReversedID      string `json:"reversedTransactionId"`
	CompletedStage  string `json:"completedAuthorisedPaymentType"` // "TRANSACAO_EFETIVADA" once settled
}

func (openBankingDialect) statementPath(accountRef string, since time.Time) string {
	return fmt.Sprintf("/open-banking/accounts/v2/accounts/%s/transactions?fromBookingDate=%s",
		url.PathEscape(accountRef), since.Format("2006-01-02"))
}

func (openBankingDialect) decode(body []byte) ([]StatementLine, []MalformedLine, error) {
	var envelope struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, nil, fmt.Errorf("unreadable statement body: %w", err)
	}

	return decodeLines(bank.OpenBanking, envelope.Data, func(raw json.RawMessage) (StatementLine, error) {
		var l openBankingLine
		if err := json.Unmarshal(raw, &l); err != nil {
			return StatementLine{}, err
		}
		if l.TransactionID == "" {
			return StatementLine{}, fmt.Errorf("missing line id")
		}

		amount, err := parsePlainDecimal(l.Amount)
		if err != nil {
			return StatementLine{}, err
		}
		amount, err = signFromIndicator(amount, l.CreditDebitType, "DEBITO")
		if err != nil {
			return StatementLine{}, err
		}
		valueDate, err := parseValueDate(l.TransactionDate, "2006-01-02")
		if err != nil {
			return StatementLine{}, err
		}

		return StatementLine{
			ExternalID:         l.TransactionID,
			Amount:             amount,
			Currency:           defaultCurrency(l.Currency),
			ValueDate:          valueDate,
			Description:        l.TransactionInfo,
			ReversesExternalID: reversalRef(l.ReversedID),
			Settled:            l.CompletedStage == "TRANSACAO_EFETIVADA",
		}, nil
	})
}

// decodeLines runs the per-line parser over the raw records, keeping good
// lines and collecting malformed ones instead of failing the whole batch.
func decodeLines(b bank.Bank, raws []json.RawMessage, parse func(json.RawMessage) (StatementLine, error)) ([]StatementLine, []MalformedLine, error) {
	var lines []StatementLine
	var malformed []MalformedLine

	for i, raw := range raws {
		line, err := parse(raw)
		if err != nil {
			malformed = append(malformed, MalformedLine{
				Raw: raw,
				Err: bank.MalformedStatementError{Bank: b, Line: i + 1, Reason: err.Error()},
			})
			continue
		}
		lines = append(lines, line)
	}

	return lines, malformed, nil
}
