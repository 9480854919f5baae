package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-backtest/internal/dto"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadBarFile_CSV(t *testing.T) {
	path := writeFile(t, "aapl.csv", "Date,Open,High,Low,Close,Volume\n"+
		"2024-01-03,11,12,10,11.5,2000\n"+
		"2024-01-02,10,11,9,10.5,1000\n")

	bars, err := ReadBarFile(path)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), bars[0].Timestamp)
	assert.InDelta(t, 10.5, bars[0].Close, 1e-12)
	assert.InDelta(t, 2000, bars[1].Volume, 1e-12)
}

func TestReadBarFile_CSVUnixTimestampsWithoutVolume(t *testing.T) {
	path := writeFile(t, "btc.csv", "timestamp,open,high,low,close\n1704153600,1,2,0.5,1.5\n")

	bars, err := ReadBarFile(path)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, time.Unix(1704153600, 0).UTC(), bars[0].Timestamp)
	assert.Zero(t, bars[0].Volume)
}

func TestReadBarFile_CSVErrors(t *testing.T) {
	_, err := ReadBarFile(writeFile(t, "a.csv", "date,open,high,low\n2024-01-02,1,1,1\n"))
	assert.ErrorContains(t, err, "missing close column")

	_, err = ReadBarFile(writeFile(t, "b.csv", "date,open,high,low,close\n2024-01-02,1,x,1,1\n"))
	assert.ErrorContains(t, err, "line 2")

	_, err = ReadBarFile(writeFile(t, "c.json", "[]"))
	assert.ErrorContains(t, err, "unsupported bar file")
}

func TestBarFile_ParquetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "msft.parquet")
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := []dto.Bar{
		{Timestamp: day, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Timestamp: day.AddDate(0, 0, 1), Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 20},
	}
	require.NoError(t, WriteBarFile(path, "MSFT", bars))

	got, err := ReadBarFile(path)
	require.NoError(t, err)
	assert.Equal(t, bars, got)
}

func TestFileBarRepository_Get(t *testing.T) {
	path := writeFile(t, "aapl.csv", "date,open,high,low,close,volume\n"+
		"2024-01-01,1,1,1,1,1\n"+
		"2024-01-02,2,2,2,2,1\n"+
		"2024-01-03,3,3,3,3,1\n")
	repo := NewFileBarRepository(map[string]string{"aapl": path}, dto.Timeframe1Day)
	assert.Equal(t, []string{"AAPL"}, repo.Symbols())

	bars, err := repo.Get(context.Background(), dto.GetBarsParam{
		Symbol: "AAPL",
		From:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.InDelta(t, 2, bars[0].Close, 1e-12)

	weekly, err := repo.Get(context.Background(), dto.GetBarsParam{Symbol: "aapl", Timeframe: dto.Timeframe1Week})
	require.NoError(t, err)
	assert.NotEmpty(t, weekly)

	_, err = repo.Get(context.Background(), dto.GetBarsParam{Symbol: "AAPL", Timeframe: dto.Timeframe1Hour})
	assert.Error(t, err)

	_, err = repo.Get(context.Background(), dto.GetBarsParam{Symbol: "MSFT"})
	assert.ErrorIs(t, err, ErrNotFound)
}
