package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/scott-cotton/cli"

	"github.com/Tyrowin/linechat/internal/manager"
	"github.com/Tyrowin/linechat/internal/server"
)

type ServerConfig struct {
	*cli.Command

	ConfigFile     string `cli:"name=config desc='YAML configuration file'"`
	Host           string `cli:"name=host desc='listen host for chat and management (default all interfaces)'"`
	Port           int    `cli:"name=port desc='chat port (default 8888)'"`
	ManagementPort int    `cli:"name=management-port desc='management channel port (default 8889)'"`
	WebSocketAddr  string `cli:"name=ws desc='WebSocket gateway address, e.g. :8080 (disabled when empty)'"`
}

func MainCommand() *cli.Command {
	cfg := &ServerConfig{Port: -1, ManagementPort: -1}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Command, "linechat-server").
		WithSynopsis("linechat-server [-config file] [-port n] [-management-port n] [-ws addr]").
		WithDescription("linechat-server relays every line received from a client to all connected clients.\n" +
			"It is controlled through the management port with the commands\n" +
			"start, stop, status, clients, port <n> and fullstop.").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return serve(cfg, cc, args)
		})
}

// load applies defaults, then the config file, then the environment, then
// the command line.
func (cfg *ServerConfig) load() (*server.Config, error) {
	conf := server.NewConfig()
	if cfg.ConfigFile != "" {
		var err error
		conf, err = server.LoadConfigFile(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
	}
	server.ApplyEnv(conf)

	if cfg.Host != "" {
		conf.Host = cfg.Host
	}
	if cfg.Port >= 0 {
		conf.Port = cfg.Port
	}
	if cfg.ManagementPort >= 0 {
		conf.ManagementPort = cfg.ManagementPort
	}
	if cfg.WebSocketAddr != "" {
		conf.WebSocketAddr = cfg.WebSocketAddr
	}
	conf.Sanitize()
	return conf, nil
}

func serve(cfg *ServerConfig, cc *cli.Context, args []string) error {
	if _, err := cfg.Parse(cc, args); err != nil {
		return err
	}

	conf, err := cfg.load()
	if err != nil {
		return fmt.Errorf("%w: %w", cli.ErrUsage, err)
	}

	exitCodes := make(chan int, 1)
	chat := server.NewChatServer(conf, server.WithExitFunc(func(code int) {
		select {
		case exitCodes <- code:
		default:
		}
	}))

	mgr := manager.New(chat, conf.Host, conf.ManagementPort)
	chat.OnFullStop(mgr.StopManager)

	if conf.WebSocketAddr != "" {
		gw := server.NewGateway(chat, conf)
		if err := gw.Start(conf.WebSocketAddr); err != nil {
			return err
		}
		chat.OnFullStop(func() {
			_ = gw.Shutdown(conf.ShutdownTimeout)
		})
	}

	if err := mgr.Start(); err != nil {
		return err
	}
	if err := chat.StartServer(); err != nil {
		mgr.StopManager()
		return err
	}

	fmt.Fprintf(cc.Out, "Chat on port %d, management on port %d\n", conf.Port, conf.ManagementPort)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	var code int
	select {
	case code = <-exitCodes:
	case sig := <-sigs:
		log.Printf("Received %s", sig)
		go chat.FullStopApp()
		code = <-exitCodes
	}

	if code != 0 {
		return cli.ExitCodeErr(code)
	}
	return nil
}
