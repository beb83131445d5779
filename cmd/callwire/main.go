// Package main is the callwire command line tool. It loads descriptor tables,
// wires the dispatcher to the default HTTP transport, and invokes methods by
// name.
package main

import (
	"io"
	"os"

	"github.com/alecthomas/kong"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

// Globals holds the flags shared by every command.
type Globals struct {
	Config      string   `help:"Path to the configuration file." short:"c" type:"path" env:"CALLWIRE_CONFIG"`
	BaseURL     string   `help:"Override client.base_url." name:"base-url"`
	Debug       bool     `help:"Log every exchange."`
	Descriptors []string `help:"Additional descriptor files or directories." short:"d" type:"path"`

	Stdout io.Writer `kong:"-"`
	Stderr io.Writer `kong:"-"`
}

// CLI is the command tree.
type CLI struct {
	Globals

	Call     CallCmd     `cmd:"" help:"Invoke Interface.Method with the given arguments."`
	Describe DescribeCmd `cmd:"" help:"Show how every loaded method resolves."`
	Check    CheckCmd    `cmd:"" help:"Validate descriptor tables and resolve every method."`
	Scan     ScanCmd     `cmd:"" help:"Generate descriptor tables from //callwire: directives in Go source."`
	Version  VersionCmd  `cmd:"" help:"Print version information."`
}

func main() {
	cli := &CLI{Globals: Globals{Stdout: os.Stdout, Stderr: os.Stderr}}
	ctx := kong.Parse(cli,
		kong.Name("callwire"),
		kong.Description("Declarative HTTP dispatch from descriptor tables."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
