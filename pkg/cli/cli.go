package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	var logCfg logConfig

	cmd := &cli.Command{
		Name:  "copybot",
		Usage: "Slack assistant that writes and learns ad copy for a brand",
		Flags: logFlags(&logCfg),
		Commands: []*cli.Command{
			serveCommand(&logCfg),
			learnCommand(&logCfg),
			simulateCommand(&logCfg),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
