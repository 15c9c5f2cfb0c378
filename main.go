package main

import (
	"github.com/alecthomas/kong"
	"gorm.io/gorm"
)

type Context struct {
	Debug bool

	gorm.Config
	Dialector gorm.Dialector
}

var cli struct {
	Debug bool   `help:"Enable debug mode."`
	DSN   string `help:"Database connection string." default:"sorrel.db"`

	Serve          ServeCmd          `cmd:"" help:"Serve the federation endpoints."`
	CreateInstance CreateInstanceCmd `cmd:"" help:"Create an instance."`
	CreateAccount  CreateAccountCmd  `cmd:"" help:"Create a local account."`
	Post           PostCmd           `cmd:"" help:"Publish a post and deliver it to its audience."`
	Follow         FollowCmd         `cmd:"" help:"Follow a remote actor."`
	Actor          ActorCmd          `cmd:"" help:"Fetch and display a remote actor."`
	Block          BlockCmd          `cmd:"" help:"Block an actor or domain."`
	Unblock        UnblockCmd        `cmd:"" help:"Remove a block."`
	AllowDomain    AllowDomainCmd    `cmd:"" help:"Add a domain to the federation allow list."`
	DenyDomain     DenyDomainCmd     `cmd:"" help:"Remove a domain from the federation allow list."`
	FollowRequests FollowRequestsCmd `cmd:"" help:"List, approve or reject pending follow requests."`
	Housekeeping   HousekeepingCmd   `cmd:"" help:"Delete orphaned rows."`
}

func main() {
	ctx := kong.Parse(&cli)
	err := ctx.Run(&Context{
		Debug:     cli.Debug,
		Dialector: newDialector(cli.DSN),
	})
	ctx.FatalIfErrorf(err)
}
