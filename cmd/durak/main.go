package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version  kong.VersionFlag `short:"v" help:"Show version"`
	Server   ServerCmd        `cmd:"" help:"Run the durak and jackpot server"`
	Verify   VerifyCmd        `cmd:"" help:"Verify a resolved jackpot round from its revealed seed"`
	Simulate SimulateCmd      `cmd:"" help:"Play bot-only durak games and report outcomes"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("durak"),
		kong.Description("Real-time Durak rooms and a provably fair red/black jackpot"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
