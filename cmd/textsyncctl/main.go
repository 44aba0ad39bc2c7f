// Command textsyncctl 是运维和调试用的命令行工具。
// sweep / stats 默认直接连接数据库和 Redis；指定 --server 时改为调用 HTTP 接口。
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"text-sync/internal/apiclient"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "textsyncctl",
		Usage: "operate and inspect a text-sync deployment",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "base URL of a running server, e.g. http://localhost:8080",
				EnvVars: []string{"TEXTSYNC_SERVER"},
			},
			&cli.StringFlag{
				Name:    "admin-token",
				Usage:   "token for admin endpoints",
				EnvVars: []string{"ADMIN_TOKEN"},
			},
			&cli.BoolFlag{
				Name:    "debug",
				EnvVars: []string{"TEXTSYNC_DEBUG"},
			},
		},
		Before: func(cctx *cli.Context) error {
			logrus.SetOutput(os.Stderr)
			if cctx.Bool("debug") {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.WarnLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			sweepCommand(),
			statsCommand(),
			createRoomCommand(),
			watchCommand(),
			editCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// remoteClient 根据全局参数创建 API 客户端，未指定 --server 时返回 nil
func remoteClient(cctx *cli.Context) (*apiclient.Client, error) {
	server := cctx.String("server")
	if server == "" {
		return nil, nil
	}
	return apiclient.New(server, apiclient.WithAdminToken(cctx.String("admin-token")))
}

func requireRemote(cctx *cli.Context) (*apiclient.Client, error) {
	client, err := remoteClient(cctx)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, cli.Exit("--server is required for this command", 2)
	}
	return client, nil
}

func printJSON(cctx *cli.Context, v interface{}) error {
	enc := json.NewEncoder(cctx.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
