package main

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"ledgercore/internal/infrastructure/storage/postgres"
	"ledgercore/pkg/logger"
)

// accountPreset is one row of a country's standard chart of accounts.
type accountPreset struct {
	Code string
	Name string
	Kind string // asset, liability, equity, income, expense
}

// taxRatePreset is one statutory rate for a country.
type taxRatePreset struct {
	Code string
	Name string
	Rate decimal.Decimal
}

// Presets are platform-global reference data. Tenants copy from them when
// they onboard; the rows themselves carry no tenant_id.
var accountPresets = map[string][]accountPreset{
	"US": {
		{"1000", "Cash and Cash Equivalents", "asset"},
		{"1100", "Accounts Receivable", "asset"},
		{"1200", "Inventory", "asset"},
		{"2000", "Accounts Payable", "liability"},
		{"2100", "Sales Tax Payable", "liability"},
		{"3000", "Owner's Equity", "equity"},
		{"4000", "Sales Revenue", "income"},
		{"5000", "Cost of Goods Sold", "expense"},
		{"6000", "Operating Expenses", "expense"},
	},
	"DE": {
		{"0100", "Kasse", "asset"},
		{"1200", "Forderungen aus Lieferungen und Leistungen", "asset"},
		{"1600", "Verbindlichkeiten aus Lieferungen und Leistungen", "liability"},
		{"1776", "Umsatzsteuer 19%", "liability"},
		{"2000", "Eigenkapital", "equity"},
		{"8400", "Erloese 19% USt", "income"},
		{"5400", "Wareneingang", "expense"},
	},
	"GB": {
		{"1000", "Bank Current Account", "asset"},
		{"1100", "Trade Debtors", "asset"},
		{"2100", "Trade Creditors", "liability"},
		{"2200", "VAT Control Account", "liability"},
		{"3000", "Capital", "equity"},
		{"4000", "Sales", "income"},
		{"5000", "Purchases", "expense"},
	},
}

var taxRatePresets = map[string][]taxRatePreset{
	"US": {
		{"US-EXEMPT", "Exempt", decimal.Zero},
	},
	"DE": {
		{"DE-STD", "Umsatzsteuer Regelsatz", decimal.NewFromFloat(0.19)},
		{"DE-RED", "Umsatzsteuer ermaessigt", decimal.NewFromFloat(0.07)},
		{"DE-ZERO", "Steuerfrei", decimal.Zero},
	},
	"GB": {
		{"GB-STD", "VAT Standard", decimal.NewFromFloat(0.20)},
		{"GB-RED", "VAT Reduced", decimal.NewFromFloat(0.05)},
		{"GB-ZERO", "VAT Zero", decimal.Zero},
	},
}

// loadPresets upserts the chart-of-accounts and tax-rate reference rows.
// Existing rows are left untouched so local edits survive reseeding.
func loadPresets(ctx context.Context, txManager *postgres.TxManager, log *logger.Logger) error {
	return txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		q := txManager.GetQuerier(ctx)
		builder := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

		accounts := 0
		for country, presets := range accountPresets {
			for _, p := range presets {
				sql, args, err := builder.
					Insert("account_presets").
					Columns("country", "code", "name", "kind").
					Values(country, p.Code, p.Name, p.Kind).
					Suffix("ON CONFLICT (country, code) DO NOTHING").
					ToSql()
				if err != nil {
					return fmt.Errorf("build account preset insert: %w", err)
				}
				tag, err := q.Exec(ctx, sql, args...)
				if err != nil {
					return fmt.Errorf("insert account preset %s/%s: %w", country, p.Code, err)
				}
				accounts += int(tag.RowsAffected())
			}
		}

		rates := 0
		for country, presets := range taxRatePresets {
			for _, p := range presets {
				sql, args, err := builder.
					Insert("tax_rate_presets").
					Columns("country", "code", "name", "rate").
					Values(country, p.Code, p.Name, p.Rate).
					Suffix("ON CONFLICT (country, code) DO NOTHING").
					ToSql()
				if err != nil {
					return fmt.Errorf("build tax rate preset insert: %w", err)
				}
				tag, err := q.Exec(ctx, sql, args...)
				if err != nil {
					return fmt.Errorf("insert tax rate preset %s/%s: %w", country, p.Code, err)
				}
				rates += int(tag.RowsAffected())
			}
		}

		log.Infow("presets loaded", "accounts_added", accounts, "tax_rates_added", rates)
		return nil
	})
}
