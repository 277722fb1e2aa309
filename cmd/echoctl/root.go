package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"EchoChat/global"
	"EchoChat/global/config"
	"EchoChat/logger"
	"EchoChat/module/client/session"
	sec "EchoChat/tools/security"

	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	server     string
	user       string
	token      string
	logLevel   string
}

type app struct {
	flags rootFlags
	cfg   *config.AppConfig
	out   io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "echoctl",
		Short:         "Terminal client for an EchoChat gateway",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.out = cmd.OutOrStdout()
			logger.SetLevel(a.flags.logLevel)
			v, err := config.New(a.flags.configPath)
			if err != nil {
				return err
			}
			// 只做客户端时 jwt.secret 可以不配，直接用 --token
			if a.flags.token != "" && v.GetString("jwt.secret") == "" {
				v.Set("jwt.secret", "unused")
			}
			a.cfg, err = config.Decode(v)
			return err
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&a.flags.configPath, "config", "c", "", "yaml config, shares jwt/nats settings with the gateway")
	pf.StringVarP(&a.flags.server, "server", "s", "http://127.0.0.1:8080", "gateway base url")
	pf.StringVarP(&a.flags.user, "user", "u", "u-alice", "user id to act as")
	pf.StringVar(&a.flags.token, "token", "", "bearer token; signed locally from jwt.secret when empty")
	pf.StringVar(&a.flags.logLevel, "log-level", "warn", "debug|info|warn|error")

	root.AddCommand(
		newTokenCmd(a),
		newUsersCmd(a),
		newConversationsCmd(a),
		newCreateCmd(a),
		newSendCmd(a),
		newChatCmd(a),
		newPresenceCmd(a),
		newEventsCmd(a),
	)
	return root
}

func (a *app) bearer() (string, error) {
	if a.flags.token != "" {
		return a.flags.token, nil
	}
	token, _, err := sec.Generate(global.JWTOptions(a.cfg), a.flags.user, nil)
	return token, err
}

func (a *app) rest() (*session.RESTClient, string, error) {
	token, err := a.bearer()
	if err != nil {
		return nil, "", err
	}
	return session.NewRESTClient(strings.TrimRight(a.flags.server, "/"), token), token, nil
}

func (a *app) wsURL() string {
	base := strings.TrimRight(a.flags.server, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	default:
		return base + "/ws"
	}
}

// startSession 会话的事件协程跟随 ctx
func (a *app) startSession(ctx context.Context, live bool, opts ...session.Option) (*session.Session, error) {
	rc, token, err := a.rest()
	if err != nil {
		return nil, err
	}
	s := session.New(a.flags.user, rc, opts...)
	go func() { _ = s.Run(ctx) }()
	if live {
		if err := s.Connect(ctx, a.wsURL(), token); err != nil {
			return nil, err
		}
	}
	if err := s.LoadConversations(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (a *app) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}
