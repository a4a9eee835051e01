package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/harigane/jpxsync/internal/module/ingest/adapter/pg"
)

// DBInitAction はスキーマを作成するコマンドのアクション（冪等）
func DBInitAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := pg.EnsureSchema(ctx, appCtx.Pool); err != nil {
		return err
	}

	fmt.Println("スキーマを作成しました")
	return nil
}
