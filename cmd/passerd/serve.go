package main

import (
	"context"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/passerd-irc/passerd/internal/identity"
	"github.com/passerd-irc/passerd/internal/ircd"
	"github.com/passerd-irc/passerd/internal/oauth1"
	"github.com/passerd-irc/passerd/internal/session"
	"github.com/passerd-irc/passerd/internal/store"
	"github.com/passerd-irc/passerd/internal/twitterapi"
)

const serverName = "passerd"
const botNick = "passerd-bot"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "accept IRC connections and bridge them to the configured microblog account",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	log := logrus.WithField("component", "serve")

	db, err := store.Open(ctx, viper.GetString("db-path"))
	if err != nil {
		return err
	}
	defer db.Close()

	if viper.GetString("api-base-url") == "" {
		log.Warn("--api-base-url not set; the remote microblog API client has no concrete HTTP implementation in this core (spec.md §1) and every authentication/timeline request will fail")
	}
	api := twitterapi.NewFake()
	transport := unconfiguredTransport{}
	basicAuth := unconfiguredBasicAuth{}

	listenAddr := viper.GetString("listen")
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("serve: listen on %s: %w", listenAddr, err)
	}
	defer ln.Close()
	log.WithField("addr", listenAddr).Infof("%s listening", okStatus)

	identities := identity.New()

	for {
		sock, err := ln.Accept()
		if err != nil {
			return err
		}
		go serveConn(sock, db, identities, api, transport, basicAuth)
	}
}

func serveConn(sock net.Conn, db store.Store, identities *identity.Cache, api twitterapi.Client, transport oauth1.Transport, basicAuth session.BasicAuthVerifier) {
	log := logrus.WithField("component", "session").WithField("remote", sock.RemoteAddr())
	log.Info("connection accepted")

	s := session.New(ircd.NewConn(sock), serverName, botNick)
	s.Store = db
	s.Identities = identities
	s.API = api
	s.Transport = transport
	s.BasicAuth = basicAuth
	s.Run()

	log.Info("connection closed")
}

// unconfiguredBasicAuth and unconfiguredTransport are placeholders: the
// delegated-auth handshake and remote basic-auth endpoint are abstract
// collaborators out of this core's scope (spec.md §1). A deployment
// wires real implementations in before running serve in production;
// until then every pairing and password login fails cleanly instead of
// panicking on a nil interface.
type unconfiguredBasicAuth struct{}

func (unconfiguredBasicAuth) VerifyBasicAuth(ctx context.Context, nick, password string) error {
	return fmt.Errorf("serve: no basic-auth verifier configured")
}

type unconfiguredTransport struct{}

func (unconfiguredTransport) RequestToken() (oauth1.Token, error) {
	return oauth1.Token{}, fmt.Errorf("serve: no delegated-auth transport configured")
}

func (unconfiguredTransport) AuthorizeURL(oauth1.Token) string { return "" }

func (unconfiguredTransport) AccessToken(oauth1.Token, string) (oauth1.Token, error) {
	return oauth1.Token{}, fmt.Errorf("serve: no delegated-auth transport configured")
}
