package main

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"slices"
	"strings"
	"time"

	"EchoChat/global"
	"EchoChat/module/chat/model"
	"EchoChat/module/client/conversations"
	"EchoChat/module/client/messages"
	"EchoChat/module/client/session"
	"EchoChat/service/natsx"
	"EchoChat/tools/errs"

	"github.com/spf13/cobra"
)

func newTokenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token for --user",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			token, err := a.bearer()
			if err != nil {
				return err
			}
			a.printf("%s\n", token)
			return nil
		},
	}
}

func newUsersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List the user directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rc, _, err := a.rest()
			if err != nil {
				return err
			}
			users, err := rc.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			for _, u := range users {
				a.printf("%-12s %-20s %s\n", u.ID, u.Name, u.Email)
			}
			return nil
		},
	}
}

func newConversationsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "conversations [query]",
		Aliases: []string{"ls"},
		Short:   "List conversations, most recent first",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			s, err := a.startSession(ctx, false)
			if err != nil {
				return err
			}
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			now := time.Now()
			for _, sum := range s.Conversations(ctx, query) {
				a.printf("%-38s %-24s %4s  %s\n", sum.ID, title(sum, a.flags.user),
					conversations.RelativeShort(sum.UpdatedAt, now), conversations.Preview(sum))
			}
			return nil
		},
	}
}

func newCreateCmd(a *app) *cobra.Command {
	var (
		name    string
		image   string
		members []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a conversation and notify its members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			s, err := a.startSession(ctx, true)
			if err != nil {
				return err
			}
			sum, err := s.Create(ctx, name, image, members)
			if err != nil {
				return err
			}
			a.printf("%s\n", sum.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "conversation name")
	cmd.Flags().StringVar(&image, "image", "", "conversation image url")
	cmd.Flags().StringSliceVarP(&members, "members", "m", nil, "member user ids (comma separated)")
	_ = cmd.MarkFlagRequired("members")
	return cmd
}

func newSendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send <conversationId> <text...>",
		Short: "Send one message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			s, err := a.startSession(ctx, true)
			if err != nil {
				return err
			}
			if err := s.Open(ctx, args[0]); err != nil {
				return err
			}
			m, err := s.Send(ctx, strings.Join(args[1:], " "), nil)
			if err != nil {
				return err
			}
			a.printf("%s %s\n", m.ID, m.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <conversationId>",
		Short: "Open a conversation, print live messages and send stdin lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			updates := make(chan session.Event, 64)
			s, err := a.startSession(ctx, true, session.WithNotify(func(e session.Event) {
				select {
				case updates <- e:
				default:
				}
			}))
			if err != nil {
				return err
			}
			convID := args[0]
			if err := s.Open(ctx, convID); err != nil {
				return err
			}
			sum, _ := findConversation(s.Conversations(ctx, ""), convID)
			r := &renderer{app: a, names: memberNames(sum), printed: map[string]struct{}{}}
			r.render(s.Messages(ctx))

			lines := make(chan string)
			go func() {
				sc := bufio.NewScanner(cmd.InOrStdin())
				for sc.Scan() {
					lines <- sc.Text()
				}
				close(lines)
			}()

			for {
				select {
				case <-ctx.Done():
					return nil
				case e := <-updates:
					if e.Kind == "live" && !s.Live() {
						a.printf("-- live channel lost, fetch only --\n")
					}
					if e.ConversationID == convID {
						r.render(s.Messages(ctx))
					}
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					if strings.TrimSpace(line) == "" {
						continue
					}
					if _, err := s.Send(ctx, line, nil); err != nil {
						a.printf("!! %v\n", err)
						continue
					}
					r.render(s.Messages(ctx))
				}
			}
		},
	}
}

func newPresenceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "presence <userId>",
		Short: "Show whether a user has live connections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, _, err := a.rest()
			if err != nil {
				return err
			}
			info, err := rc.Presence(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			state := "offline"
			if info.Online {
				state = "online"
			}
			a.printf("%s %s connections=%d node=%s\n", info.UserID, state, info.Connections, info.Node)
			return nil
		},
	}
}

func newEventsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Tail fanout events exported to NATS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			nc, err := global.ConfigNats(a.cfg)
			if err != nil {
				return err
			}
			if nc == nil {
				return errs.ErrArgs.WrapMsg("nats.servers is not configured")
			}
			defer nc.Close()

			sub, err := natsx.NewSubscriber(nc, a.cfg.Nats.SubjectPrefix, global.ExportKinds,
				natsx.NatsxIdemMiddleware(natsx.NewMemIdem(10*time.Minute), 0))
			if err != nil {
				return err
			}
			err = sub.Subscribe(ctx, global.ExportKinds, func(_ context.Context, m natsx.NatsxMessage) error {
				a.printf("%-16s node=%s origin=%s %s\n", m.Kind(), m.Header[natsx.HeaderNode], m.Header[natsx.HeaderOrigin], m.Data)
				return nil
			})
			if err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		},
	}
}

// renderer 只打印还没打印过的消息，分组信息按全量序列计算
type renderer struct {
	*app
	names   map[string]string
	printed map[string]struct{}
}

func (r *renderer) render(msgs []model.Message) {
	now := time.Now()
	for it := range messages.Group(slices.Values(msgs)) {
		if _, done := r.printed[it.Message.ID]; done {
			continue
		}
		r.printed[it.Message.ID] = struct{}{}
		if it.ShowDivider {
			r.printf("\n          --- %s ---\n", messages.FormatTimestamp(it.Message.CreatedAt, now))
		}
		if it.NewBurst {
			r.printf("%s:\n", r.name(it.Message.SenderID))
		}
		text := it.Message.Text
		if it.Message.Attachment != nil {
			text += " [" + it.Message.Attachment.Name + "]"
		}
		r.printf("    %s\n", text)
	}
}

func (r *renderer) name(userID string) string {
	if n, ok := r.names[userID]; ok && n != "" {
		return n
	}
	return userID
}

func memberNames(sum model.ConversationSummary) map[string]string {
	out := make(map[string]string, len(sum.Members))
	for _, m := range sum.Members {
		out[m.MemberID] = m.User.Name
	}
	return out
}

func findConversation(list []model.ConversationSummary, id string) (model.ConversationSummary, bool) {
	for _, s := range list {
		if s.ID == id {
			return s, true
		}
	}
	return model.ConversationSummary{}, false
}

// title 没有名字的会话用其他成员的名字
func title(sum model.ConversationSummary, me string) string {
	if sum.Name != "" {
		return sum.Name
	}
	var names []string
	for _, m := range sum.Members {
		if m.MemberID == me {
			continue
		}
		if f := strings.Fields(m.User.Name); len(f) > 0 {
			names = append(names, f[0])
		} else {
			names = append(names, m.MemberID)
		}
	}
	return strings.Join(names, ", ")
}
