package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/soulart-temple/backend/internal/session"
)

func newSessionCmd() *cobra.Command {
	var (
		memberID string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Mint a bearer session token for a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := session.NewManager(viper.GetString("session_secret"), session.WithTTL(ttl))
			if err != nil {
				return fmt.Errorf("SESSION_SECRET: %w", err)
			}

			token, err := sessions.Sign(sessions.ForMember(memberID))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&memberID, "member", "", "Member id")
	cmd.Flags().DurationVar(&ttl, "ttl", session.DefaultTTL, "Token lifetime")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}
