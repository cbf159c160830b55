package scheduler_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chuanzhoupan/goingest/internal/domain"
	"github.com/chuanzhoupan/goingest/internal/scheduler"
)

func TestRunStatsCounts(t *testing.T) {
	stats := scheduler.NewRunStats()
	stats.AddOK()
	stats.AddOK()
	stats.AddFail(domain.Job{ID: "9"}, "boom")

	result := stats.Result(3)
	assert.Equal(t, 2, result.OK)
	assert.Equal(t, 1, result.Fail)
	assert.Equal(t, 3, result.Total)
	assert.Len(t, result.ErrorSamples, 1)
	assert.Equal(t, "9", result.ErrorSamples[0].Job.ID)
	assert.Equal(t, "boom", result.ErrorSamples[0].Error)
}

func TestRunStatsSampleCap(t *testing.T) {
	stats := scheduler.NewRunStats()
	for i := range 15 {
		stats.AddFail(domain.Job{ID: fmt.Sprintf("%d", i)}, "err")
	}

	result := stats.Result(15)
	assert.Equal(t, 15, result.Fail)
	assert.Len(t, result.ErrorSamples, 10)
	assert.Equal(t, "0", result.ErrorSamples[0].Job.ID)
	assert.Equal(t, "9", result.ErrorSamples[9].Job.ID)
}

func TestRunStatsErrorTruncation(t *testing.T) {
	stats := scheduler.NewRunStats()
	stats.AddFail(domain.Job{ID: "1"}, strings.Repeat("x", 500))

	result := stats.Result(1)
	assert.Len(t, result.ErrorSamples[0].Error, 200)
}
