// Command ircc is a minimal interactive IRC client (spec §6 "CLI":
// "client --host <addr> --port <n>").
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/anthony2v/goircd/config"
	"github.com/anthony2v/goircd/ircclient"
	"github.com/spf13/cobra"
)

var (
	host string
	port string
)

var rootCmd = &cobra.Command{
	Use:   "ircc",
	Short: "Connect to an IRC server",
	RunE:  runClient,
}

func init() {
	rootCmd.Flags().StringVar(&host, "host", config.DefaultHost, "server address")
	rootCmd.Flags().StringVar(&port, "port", config.DefaultPort, "server port")
}

func runClient(_ *cobra.Command, _ []string) error {
	cfg := config.ClientConfig{Host: host, Port: port, Username: config.DefaultUsername()}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	view := newConsoleView()
	c := ircclient.New(view)
	c.Username = cfg.Username

	if err := c.Connect(ctx, cfg.Host, cfg.Port); err != nil {
		return err
	}
	defer c.Close()

	c.Run()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
