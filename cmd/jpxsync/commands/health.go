package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

// HealthAction は全ジョブのヘルス状態を表示するコマンドのアクション
// 不健全なジョブがある場合は非ゼロ終了する（監視からの定期実行を想定）
func HealthAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	results, err := appCtx.Health.CheckAll(ctx)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Job", "Healthy", "Reason")
	unhealthy := 0
	for _, r := range results {
		status := "OK"
		if !r.Healthy {
			status = "NG"
			unhealthy++
		}
		table.Append(string(r.JobName), status, r.Reason)
	}
	table.Render()

	if unhealthy > 0 {
		return fmt.Errorf("%d件のジョブが不健全です", unhealthy)
	}
	return nil
}
