package main

import (
	"bufio"
	"errors"
	"net"
	"os"
	"strconv"

	"github.com/mattn/go-isatty"
	"github.com/scott-cotton/cli"

	"github.com/Tyrowin/linechat/internal/client"
)

type ClientConfig struct {
	*cli.Command

	Host    string `cli:"name=host desc='server host' default=127.0.0.1"`
	Port    int    `cli:"name=port desc='server port (default 8888)'"`
	Nick    string `cli:"name=nick desc='nickname shown before every message'"`
	NoColor bool   `cli:"name=no-color desc='do not colour status lines'"`
}

func MainCommand() *cli.Command {
	cfg := &ClientConfig{Host: "127.0.0.1", Port: 8888, Nick: "anonymous"}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Command, "linechat").
		WithSynopsis("linechat [-host h] [-port n] [-nick name]").
		WithDescription("linechat connects to a linechat server, prints every line it relays and\n" +
			"sends each line typed on stdin as '<nick>: <text>'.\n" +
			"Typed commands: /connect host:port, /nick name, /quit.").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return chat(cfg, cc, args)
		})
}

func chat(cfg *ClientConfig, cc *cli.Context, args []string) error {
	if _, err := cfg.Parse(cc, args); err != nil {
		return err
	}

	colored := !cfg.NoColor && isatty.IsTerminal(os.Stdout.Fd())
	console := client.NewConsole(cc.Out, colored)
	defer console.Close()

	c := client.New(console, cfg.Nick)
	// Deferred after console.Close so the disconnect notice is printed first.
	defer c.Close()

	if err := c.Connect(net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))); err != nil {
		console.Print("Исключение: " + err.Error())
	}

	input := bufio.NewScanner(os.Stdin)
	for input.Scan() {
		quit, err := c.HandleInput(input.Text())
		if quit {
			return nil
		}
		if errors.Is(err, client.ErrNotConnected) {
			console.Print(client.NoticeDisconnected)
		} else if err != nil {
			console.Print("Исключение: " + err.Error())
		}
	}
	return input.Err()
}
