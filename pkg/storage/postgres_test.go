package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitobit-development/bms-dashboard-sub000/pkg/types"
)

func TestBuildReadingsInsert(t *testing.T) {
	readings := []types.TelemetryReading{
		{TS: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC), BatterySOC: 0.5, Condition: types.ConditionClear},
		{TS: time.Date(2026, 8, 1, 10, 5, 0, 0, time.UTC), BatterySOC: 0.51, Condition: types.ConditionClear},
		{TS: time.Date(2026, 8, 1, 10, 10, 0, 0, time.UTC), BatterySOC: 0.52, Condition: types.ConditionCloudy},
	}

	query, args := buildReadingsInsert("site-001", readings)

	require.Len(t, args, 3*16)
	// every row binds the site first, then its own values
	assert.Equal(t, "site-001", args[0])
	assert.Equal(t, "site-001", args[16])
	assert.Equal(t, readings[1].TS, args[17])
	assert.Equal(t, types.ConditionCloudy, args[2*16+15])

	// one placeholder per argument, highest index matches
	assert.Equal(t, len(args), strings.Count(query, "$"))
	assert.Contains(t, query, "$48")
	assert.NotContains(t, query, "$49")
	assert.Contains(t, query, "ON CONFLICT (site_id, ts)")
	assert.Equal(t, 3, strings.Count(query, "($")) // three value tuples
}

func TestBuildReadingsInsertSingleRow(t *testing.T) {
	query, args := buildReadingsInsert("s", []types.TelemetryReading{{TS: time.Now()}})
	assert.Len(t, args, 16)
	assert.Contains(t, query, "$16")
	assert.NotContains(t, query, "$17")
}
