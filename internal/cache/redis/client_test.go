package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChartKey(t *testing.T) {
	assert.Equal(t, "chart:select_fleet.csv_1700000000:9f2c", ChartKey("select_fleet.csv_1700000000", "9f2c"))
	assert.Equal(t, "chart:upload_parts.xlsx_0123456789abcdef:*", datasetPattern("upload_parts.xlsx_0123456789abcdef"))
}

func TestNewClient_Unreachable(t *testing.T) {
	_, err := NewClient("127.0.0.1", 1, "", 0)
	assert.Error(t, err)
}
