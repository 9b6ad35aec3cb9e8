package tradeio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFillMissingFees(t *testing.T) {
	data := "Withdrawal,2017-01-01,,,BTC,1,,,Kraken\n" +
		"Withdrawal,2017-01-02,,,ETH,10,ETH,0.1,Kraken\n" +
		"Deposit,2017-01-03,ETH,9.9,,,,,Bitstamp\n" +
		"Deposit,2017-01-04,BTC,0.99,,,,,Bitstamp\n"
	trades, err := ReadCSV(strings.NewReader(data), nil)
	require.NoError(t, err)

	fixed, err := FillMissingFees(trades, true, nil)
	require.NoError(t, err)

	assert.Equal(t, "BTC", fixed[0].FeeCurrency)
	assert.Equal(t, "0.01", fixed[0].FeeAmount.String())
	assert.Equal(t, "0.1", fixed[1].FeeAmount.String())
	assert.True(t, trades[0].FeeAmount.IsZero(), "input is left alone")
}

func TestFillMissingFees_DepositLargerThanWithdrawal(t *testing.T) {
	data := "Withdrawal,2017-01-01,,,BTC,1,,,Kraken\n" +
		"Withdrawal,2017-01-02,,,BTC,3,,,Kraken\n" +
		"Deposit,2017-01-03,BTC,2.5,,,,,Bitstamp\n"
	trades, err := ReadCSV(strings.NewReader(data), nil)
	require.NoError(t, err)

	_, err = FillMissingFees(trades, true, nil)
	require.Error(t, err)

	core, logs := observer.New(zapcore.WarnLevel)
	fixed, err := FillMissingFees(trades, false, zap.New(core))
	require.NoError(t, err)
	assert.True(t, fixed[0].FeeAmount.IsZero())
	assert.Equal(t, "0.5", fixed[1].FeeAmount.String())
	assert.Equal(t, 1, logs.FilterMessage("withdrawal is lower than the following deposit, trying the next withdrawal").Len())
	assert.Equal(t, 1, logs.FilterMessage("withdrawals could not be matched with deposits").Len())
}

func TestFillMissingFees_ForeignFeeCurrency(t *testing.T) {
	data := "Withdrawal,2017-01-01,EUR,0,BTC,1,EUR,1,Kraken\n"
	trades, err := ReadCSV(strings.NewReader(data), nil)
	require.NoError(t, err)

	_, err = FillMissingFees(trades, false, nil)
	assert.Error(t, err)
}
