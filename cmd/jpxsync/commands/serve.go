package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/harigane/jpxsync/internal/interface/httpapi"
)

// ServeAction はジョブの手動起動とヘルス確認のためのHTTPサーバーを起動するアクション
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.RequireAPI(); err != nil {
		return err
	}

	srvCfg := appCtx.Config.Server
	server := httpapi.NewServer(
		appCtx.Runner,
		appCtx.Health,
		srvCfg.Addr,
		httpapi.WithAuthToken(srvCfg.AuthToken),
		httpapi.WithDebug(srvCfg.Debug),
	)
	return server.Run(ctx)
}
