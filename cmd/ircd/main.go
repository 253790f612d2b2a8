// Command ircd runs the IRC server (spec §6 "CLI": "server --ip <addr>
// --port <n>").
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/anthony2v/goircd/config"
	"github.com/anthony2v/goircd/ircserver"
	"github.com/spf13/cobra"
)

var (
	ip   string
	port string
)

var rootCmd = &cobra.Command{
	Use:   "ircd",
	Short: "Run the IRC server",
	RunE:  runServer,
}

func init() {
	rootCmd.Flags().StringVar(&ip, "ip", config.DefaultHost, "address to listen on")
	rootCmd.Flags().StringVar(&port, "port", config.DefaultPort, "port to listen on")
}

func runServer(_ *cobra.Command, _ []string) error {
	cfg := config.ServerConfig{Host: ip, Port: port}
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

	s := ircserver.New(cfg.Host, cfg.Port)
	s.OnConnect(func(sess *ircserver.Session) {
		log.Printf("ircd: connection from %s", sess.Conn.RemoteAddr())
	})
	s.OnDisconnect(func(sess *ircserver.Session, reason string) {
		log.Printf("ircd: %s disconnected: %s", sess, reason)
	})

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	log.Printf("ircd: listening on %s:%s", cfg.Host, cfg.Port)
	if err := s.Start(ctx); err != nil {
		return err
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
