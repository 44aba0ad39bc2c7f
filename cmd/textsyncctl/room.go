package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"text-sync/internal/apiclient"
	"text-sync/internal/domain"
	"text-sync/internal/syncengine"
)

func createRoomCommand() *cli.Command {
	return &cli.Command{
		Name:      "create-room",
		Usage:     "create a room and print its code and token",
		ArgsUsage: "NAME",
		Action: func(cctx *cli.Context) error {
			client, err := requireRemote(cctx)
			if err != nil {
				return err
			}
			name := strings.Join(cctx.Args().Slice(), " ")
			result, err := client.CreateRoom(cctx.Context, name)
			if err != nil {
				return err
			}
			return printJSON(cctx, result)
		},
	}
}

func roomFlag() cli.Flag {
	return &cli.StringFlag{Name: "room", Aliases: []string{"r"}, Usage: "room code", Required: true}
}

// openEngine 加入房间并打开同步引擎
func openEngine(ctx context.Context, client *apiclient.Client, code string) (*syncengine.Engine, *apiclient.RoomClient, error) {
	joined, err := client.JoinRoom(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if joined.Expired {
		return nil, nil, cli.Exit(fmt.Sprintf("room %s expired at %s", joined.Room.ID, joined.ExpiresAt.Format("2006-01-02 15:04:05")), 3)
	}
	rc := client.Room(joined.Room.ID, joined.Token)
	engine := syncengine.New(rc.RoomID(), rc, rc, syncengine.Config{})
	if err := engine.Open(ctx); err != nil {
		return nil, nil, err
	}
	return engine, rc, nil
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "print the message list of a room every time it changes",
		Flags: []cli.Flag{roomFlag()},
		Action: func(cctx *cli.Context) error {
			client, err := requireRemote(cctx)
			if err != nil {
				return err
			}
			engine, _, err := openEngine(cctx.Context, client, cctx.String("room"))
			if err != nil {
				return err
			}
			defer engine.Close()

			out := cctx.App.Writer
			changes := make(chan []domain.Message, 16)
			engine.OnChange(func(list []domain.Message) {
				select {
				case changes <- list:
				default:
				}
			})
			engine.OnStateChange(func(state syncengine.State) {
				fmt.Fprintf(out, "--- feed %s\n", state)
			})
			printList(cctx, engine.ListMessages())
			for {
				select {
				case <-cctx.Context.Done():
					return nil
				case list := <-changes:
					if engine.RoomDeleted() {
						fmt.Fprintln(out, "room deleted")
						return nil
					}
					printList(cctx, list)
				}
			}
		},
	}
}

func printList(cctx *cli.Context, list []domain.Message) {
	out := cctx.App.Writer
	fmt.Fprintf(out, "--- %d message(s)\n", len(list))
	for _, m := range list {
		fmt.Fprintf(out, "%s  %-24s  %q\n", m.ID, m.DisplayTitle(domain.DefaultTitle(domain.DefaultLocale)), m.Content)
	}
}

func editCommand() *cli.Command {
	return &cli.Command{
		Name:  "edit",
		Usage: "replace the content and/or title of a message",
		Flags: []cli.Flag{
			roomFlag(),
			&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Usage: "message id (default: first message)"},
			&cli.StringFlag{Name: "content", Usage: "new content"},
			&cli.StringFlag{Name: "title", Usage: "new title"},
			&cli.DurationFlag{
				Name:    "debounce",
				Usage:   "quiet period before edits are written",
				Value:   syncengine.DefaultDebounceDelay,
				EnvVars: []string{"EDIT_DEBOUNCE"},
			},
		},
		Action: func(cctx *cli.Context) error {
			if !cctx.IsSet("content") && !cctx.IsSet("title") {
				return cli.Exit("nothing to edit: pass --content and/or --title", 2)
			}
			client, err := requireRemote(cctx)
			if err != nil {
				return err
			}
			engine, _, err := openEngine(cctx.Context, client, cctx.String("room"))
			if err != nil {
				return err
			}
			defer engine.Close()

			buf := syncengine.NewEditBuffer(engine, syncengine.EditBufferConfig{Delay: cctx.Duration("debounce")})
			defer buf.Close()

			id := cctx.String("message")
			if id == "" {
				id = engine.DefaultSelection()
			}
			if err := buf.Select(cctx.Context, id); err != nil {
				return err
			}
			if cctx.IsSet("title") {
				if err := buf.SetTitle(cctx.String("title")); err != nil {
					return err
				}
			}
			if cctx.IsSet("content") {
				if err := buf.SetContent(cctx.String("content")); err != nil {
					return err
				}
			}
			if err := buf.Flush(cctx.Context); err != nil {
				return err
			}
			m, _ := engine.Get(id)
			return printJSON(cctx, m)
		},
	}
}
