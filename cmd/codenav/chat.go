package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aixgo-dev/codenav/internal/api"
	"github.com/aixgo-dev/codenav/internal/dialogue"
	"github.com/aixgo-dev/codenav/internal/pathgen"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

const chatHelp = `输入消息与学习助手对话。命令：/new 开始新会话，/quit 退出。`

func newChatCmd(opts *rootOptions) *cobra.Command {
	var (
		userID    string
		provider  string
		sessionID string
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the tutor in an interactive terminal session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if !verbose {
				cfg.Log.Level = "warn"
				cfg.Log.Format = "console"
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			return repl(cmd.Context(), cmd.OutOrStdout(), a.engine, dialogue.Request{
				SessionID:         sessionID,
				UserID:            userID,
				PreferredProvider: provider,
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "cli", "user id recorded on new sessions")
	cmd.Flags().StringVar(&provider, "provider", "", "preferred chat provider")
	cmd.Flags().StringVar(&sessionID, "session", "", "resume an existing session")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "keep configured logging")
	return cmd
}

func repl(ctx context.Context, out io.Writer, engine api.MessageProcessor, base dialogue.Request) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Fprintln(out, chatHelp)

	req := base
	for {
		input, err := line.Prompt("你> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		switch input {
		case "/quit", "/exit":
			return nil
		case "/new":
			req.SessionID = ""
			fmt.Fprintln(out, "已开始新会话。")
			continue
		}

		req.Message = input
		resp := engine.ProcessMessage(ctx, req)
		req.SessionID = resp.SessionID
		render(out, resp)
	}
}

// render prints a response for the terminal.
func render(out io.Writer, resp dialogue.Response) {
	fmt.Fprintf(out, "助手> %s\n", resp.Message)

	if path, ok := resp.Data["path"].(*pathgen.Path); ok {
		for i, m := range path.Modules {
			fmt.Fprintf(out, "  %d. %s（%d 周）\n", i+1, m.Title, m.Weeks)
		}
	}

	if len(resp.SuggestedActions) > 0 {
		labels := make([]string, len(resp.SuggestedActions))
		for i, a := range resp.SuggestedActions {
			labels[i] = a.Label
		}
		fmt.Fprintf(out, "  可选：%s\n", strings.Join(labels, " | "))
	}
	fmt.Fprintf(out, "  [%s · %s · %.2f]\n", resp.Phase, resp.Type, resp.Confidence)
}
