package money_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-engine/internal/money"
)

func TestFormatDefaultProfile(t *testing.T) {
	p := money.DefaultProfile()

	require.Equal(t, "$19.99", p.Format(money.New("19.99")))
	require.Equal(t, "$1,234.56", p.Format(money.New("1234.56")))
	require.Equal(t, "$0.00", p.Format(decimal.Zero))
	require.Equal(t, "$1,000,000.00", p.Format(money.New("1000000")))
}

func TestFormatPositionsAndSeparators(t *testing.T) {
	p := money.NewProfile("EUR", money.PositionRightSpace, ".", ",", 2)
	require.Equal(t, "1.234,50 €", p.Format(money.New("1234.5")))

	p = money.NewProfile("JPY", money.PositionLeftSpace, ",", ".", 0)
	require.Equal(t, "¥ 12,346", p.Format(money.New("12345.6")))

	p = money.NewProfile("GBP", money.PositionRight, ",", ".", 2)
	require.Equal(t, "5.00£", p.Format(money.New("5")))
}

func TestFormatNegative(t *testing.T) {
	p := money.DefaultProfile()
	require.Equal(t, "-$12.50", p.Format(money.New("-12.5")))
}

func TestRoundIsBankers(t *testing.T) {
	require.True(t, money.Round(money.New("2.345"), 2).Equal(money.New("2.34")))
	require.True(t, money.Round(money.New("2.355"), 2).Equal(money.New("2.36")))
}

func TestSymbolFallsBackToDollar(t *testing.T) {
	require.Equal(t, "₹", money.Symbol("inr"))
	require.Equal(t, "$", money.Symbol("XYZ"))
}

func TestConvertAppliesMarkupAndRounding(t *testing.T) {
	usd := money.BaseCurrency(money.DefaultProfile())
	eur := money.Currency{
		Profile:      money.NewProfile("EUR", money.PositionLeft, ".", ",", 2),
		ExchangeRate: money.New("0.9"),
		Markup:       money.New("10"),
		Rounding:     money.RoundNearestHalf,
	}

	got, err := money.Convert(money.New("10"), usd, eur)
	require.NoError(t, err)
	// 10 * 0.9 * 1.1 = 9.9 -> nearest half = 10
	require.True(t, got.Equal(money.New("10")), got.String())

	eur.Rounding = money.RoundDown
	got, err = money.Convert(money.New("10"), usd, eur)
	require.NoError(t, err)
	require.True(t, got.Equal(money.New("9")), got.String())
}

func TestConvertRejectsZeroRate(t *testing.T) {
	from := money.BaseCurrency(money.DefaultProfile())
	from.ExchangeRate = decimal.Zero
	_, err := money.Convert(money.New("1"), from, money.BaseCurrency(money.DefaultProfile()))
	require.ErrorIs(t, err, money.ErrZeroRate)
}
