package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"nexchat/client"
	"nexchat/domain"
	"nexchat/domain/chat"
	"nexchat/domain/event"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

const confirmTimeout = 15 * time.Second

// session bundles what every command needs once the token is known.
type session struct {
	config Config
	log    *slog.Logger
	api    *client.API
	self   domain.Identity
}

func buildRootCmd(config Config) *cobra.Command {
	s := &session{config: config}
	root := &cobra.Command{
		Use:           "nexchat",
		Short:         "Terminal client for the nexchat direct messages",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return s.open(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&s.config.ServerURL, "server", config.ServerURL, "Server base URL")
	root.PersistentFlags().StringVar(&s.config.Token, "token", config.Token, "Session token (NEXCHAT_TOKEN)")
	root.AddCommand(
		buildListenCmd(s),
		buildSendCmd(s),
		buildHistoryCmd(s),
		buildOnlineCmd(s),
	)
	return root
}

func (s *session) open(ctx context.Context) error {
	if s.config.Token == "" {
		return fmt.Errorf("a token is required, set NEXCHAT_TOKEN or --token")
	}
	color.Enable = s.config.Colours
	s.log = logs.GetLoggerFromString(s.config.LogLevel)
	s.api = client.NewAPI(s.config.ServerURL, s.config.Token)
	self, err := s.api.Profile(ctx)
	if err != nil {
		return err
	}
	s.self = self
	return nil
}

func (s *session) dial(ctx context.Context) (*client.Client, error) {
	return client.Dial(ctx, s.log, s.config.ServerURL, s.config.Token, s.self)
}

func buildListenCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Print presence changes and messages until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := s.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			fmt.Println(color.New(color.BgBlack, color.FgGreen).Render(
				fmt.Sprintf("  ====== connected as %s (Ctrl+C to quit) ======", s.self.Username)))
			return c.Listen(cmd.Context(), func(evt event.ServerEvent) { printEvent(s.self, evt) })
		},
	}
}

func buildSendCmd(s *session) *cobra.Command {
	var to, text, file string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message and wait for the server to confirm it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			intent := chat.SendMessageCommand{Recipient: to, Text: text}
			if file != "" {
				attachment, err := readAttachment(file)
				if err != nil {
					return err
				}
				intent.File = attachment
			}
			return s.send(cmd.Context(), intent)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Recipient user id")
	cmd.Flags().StringVar(&text, "text", "", "Message text")
	cmd.Flags().StringVar(&file, "file", "", "Path of a file to attach")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func (s *session) send(ctx context.Context, intent chat.SendMessageCommand) error {
	c, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()
	outcome := make(chan error, 1)
	go func() {
		_ = c.Listen(ctx, func(evt event.ServerEvent) {
			switch e := evt.(type) {
			case event.ReceiveMessage:
				if e.Sender == s.self.UserID && e.Recipient == intent.Recipient {
					fmt.Println(color.Green.Render("sent"), e.ID)
					report(outcome, nil)
				}
			case event.Error:
				if e.Action == event.SendMessage {
					report(outcome, fmt.Errorf("message refused: %s", e.Message))
				}
			}
		})
	}()

	if _, err := c.Send(intent); err != nil {
		return err
	}
	select {
	case err := <-outcome:
		return err
	case <-ctx.Done():
		return fmt.Errorf("no confirmation within %s", confirmTimeout)
	}
}

// report keeps only the first outcome; later events are ignored.
func report(outcome chan<- error, err error) {
	select {
	case outcome <- err:
	default:
	}
}

func readAttachment(path string) (*chat.FileAttachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	mime := mimetype.Detect(data)
	return &chat.FileAttachment{
		Name: filepath.Base(path),
		Data: "data:" + mime.String() + ";base64," + base64.StdEncoding.EncodeToString(data),
	}, nil
}

func buildHistoryCmd(s *session) *cobra.Command {
	var peer string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the conversation with a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			messages, err := s.api.History(cmd.Context(), peer)
			if err != nil {
				return err
			}
			reconciler := client.NewReconciler(s.self)
			reconciler.Load(messages)

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Time", "From", "Message", "Flags"})
			table.SetAutoWrapText(false)
			table.SetBorder(false)
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			for _, entry := range reconciler.Conversation(peer) {
				m := entry.Message
				flags := ""
				if m.IsEdited && !m.IsDeleted {
					flags = "edited"
				}
				if reconciler.CanEditOrDelete(entry) {
					flags += " editable"
				}
				table.Append([]string{
					domain.CreationTime(m).Local().Format("2006-01-02 15:04"),
					m.Sender,
					entry.DisplayText(),
					flags,
				})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&peer, "with", "", "Peer user id")
	_ = cmd.MarkFlagRequired("with")
	return cmd
}

func buildOnlineCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "online",
		Short: "Print who is online right now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := s.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), confirmTimeout)
			defer cancel()
			snapshot := make(chan event.OnlineUsers, 1)
			go func() {
				_ = c.Listen(ctx, func(evt event.ServerEvent) {
					if users, ok := evt.(event.OnlineUsers); ok {
						select {
						case snapshot <- users:
						default:
						}
					}
				})
			}()
			select {
			case users := <-snapshot:
				for _, u := range users {
					fmt.Printf("%s %s (%s)\n", color.Green.Render("●"), u.Username, u.UserID)
				}
				return nil
			case <-ctx.Done():
				return fmt.Errorf("no presence snapshot received")
			}
		},
	}
}

func printEvent(self domain.Identity, evt event.ServerEvent) {
	stamp := color.Gray.Render(time.Now().Format("15:04:05"))
	switch e := evt.(type) {
	case event.OnlineUsers:
		names := make([]string, 0, len(e))
		for _, u := range e {
			names = append(names, u.Username)
		}
		fmt.Println(stamp, color.Cyan.Render("online"), names)
	case event.ReceiveMessage:
		direction := color.Yellow.Render(e.Sender + " → " + e.Recipient)
		if e.Sender == self.UserID {
			direction = color.Blue.Render("me → " + e.Recipient)
		}
		entry := client.Entry{State: client.Confirmed, Message: e.Message}
		fmt.Println(stamp, direction, entry.DisplayText(), color.Gray.Render(e.ID.String()))
	case event.MessageUpdated:
		fmt.Println(stamp, color.Magenta.Render("edited"), e.ID, e.Text)
	case event.MessageDeleted:
		fmt.Println(stamp, color.Magenta.Render("deleted"), e.ID)
	case event.Error:
		fmt.Println(stamp, color.Red.Render("error"), e.Action, e.Message)
	}
}
