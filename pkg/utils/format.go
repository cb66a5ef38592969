package utils

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Formatter renders amounts and dates for user-facing text in one locale
type Formatter struct {
	tag     language.Tag
	unit    currency.Unit
	printer *message.Printer
	loc     *time.Location
}

func NewFormatter(locale, currencyCode string, loc *time.Location) (*Formatter, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("parse locale %q: %w", locale, err)
	}
	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		return nil, fmt.Errorf("parse currency %q: %w", currencyCode, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Formatter{
		tag:     tag,
		unit:    unit,
		printer: message.NewPrinter(tag),
		loc:     loc,
	}, nil
}

// Currency formats amount with the locale's currency symbol, e.g. "₹ 1,500.00"
func (f *Formatter) Currency(amount decimal.Decimal) string {
	value, _ := amount.Round(2).Float64()
	return f.printer.Sprintf("%v", currency.Symbol(f.unit.Amount(value)))
}

// Number formats amount with locale digit grouping and two decimals
func (f *Formatter) Number(amount decimal.Decimal) string {
	value, _ := amount.Round(2).Float64()
	return f.printer.Sprintf("%.2f", value)
}

// Date formats t as a calendar day in the formatter's timezone, e.g. "13 Jun 2024"
func (f *Formatter) Date(t time.Time) string {
	return t.In(f.loc).Format("02 Jan 2006")
}

func (f *Formatter) CurrencyCode() string {
	return f.unit.String()
}

// ISODate formats t as YYYY-MM-DD in the formatter's timezone
func (f *Formatter) ISODate(t time.Time) string {
	return t.In(f.loc).Format(DateLayout)
}
