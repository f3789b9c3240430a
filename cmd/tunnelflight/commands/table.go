package commands

import (
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func formatEpoch(epoch *int64) string {
	if epoch == nil {
		return "-"
	}
	return time.Unix(*epoch, 0).In(env.clock.Location()).Format(time.DateOnly)
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
