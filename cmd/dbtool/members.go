package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/soulart-temple/backend/internal/entitlement"
	"github.com/soulart-temple/backend/internal/models"
	"github.com/soulart-temple/backend/internal/store"
)

// memberStore is the subset of the store the admin commands need.
type memberStore interface {
	GetMember(ctx context.Context, id string) (*models.Member, error)
	CreateMember(ctx context.Context, m *models.Member) error
	UpdateMember(ctx context.Context, id string, mutate func(*models.Member) error) (*models.Member, error)
}

func grantTier(ctx context.Context, members memberStore, id string, tier models.Tier, expires *time.Time, now time.Time) (*models.Member, error) {
	if !tier.Paid() {
		return nil, fmt.Errorf("tier must be basic or premium, got %q", tier)
	}
	if expires != nil && !expires.After(now) {
		return nil, fmt.Errorf("expiry %s is in the past", expires.Format(time.RFC3339))
	}

	return members.UpdateMember(ctx, id, func(m *models.Member) error {
		m.Tier = tier
		m.SubscriptionExpiresAt = expires
		if m.MembershipStartedAt == nil {
			started := now
			m.MembershipStartedAt = &started
		}
		return nil
	})
}

func revokeTier(ctx context.Context, members memberStore, id string) (*models.Member, error) {
	return members.UpdateMember(ctx, id, func(m *models.Member) error {
		m.Downgrade()
		m.SubscriptionExpiresAt = nil
		return nil
	})
}

func parseExpiry(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --expires %q: want RFC3339", raw)
	}
	return &t, nil
}

func printMember(w io.Writer, m *models.Member, decisions []entitlement.Decision, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "id\t%s\n", m.ID)
	if m.Email != nil {
		fmt.Fprintf(tw, "email\t%s\n", *m.Email)
	}
	fmt.Fprintf(tw, "tier\t%s (%s)\n", m.Tier, m.Tier.DisplayName())
	fmt.Fprintf(tw, "active\t%t\n", m.HasActiveSubscription(now))
	if m.SubscriptionExpiresAt != nil {
		fmt.Fprintf(tw, "expires\t%s\n", m.SubscriptionExpiresAt.Format(time.RFC3339))
	}
	if m.BillingCustomerID != nil {
		fmt.Fprintf(tw, "customer\t%s\n", *m.BillingCustomerID)
	}
	for _, d := range decisions {
		remaining := fmt.Sprint(d.Remaining)
		if d.Unlimited {
			remaining = "unlimited"
		}
		state := "allowed"
		if !d.Allowed {
			state = "denied (" + d.Reason + ")"
		}
		fmt.Fprintf(tw, "%s\t%s, remaining %s\n", d.Feature, state, remaining)
	}
	tw.Flush()
}

func newCreateMemberCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "create-member",
		Short: "Create a free-tier member",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			st, err := store.New(db)
			if err != nil {
				return err
			}

			m := &models.Member{}
			if e := strings.TrimSpace(email); e != "" {
				m.Email = &e
			}
			if err := st.CreateMember(cmd.Context(), m); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Member email address")
	return cmd
}

func newGrantCmd() *cobra.Command {
	var (
		memberID string
		tier     string
		expires  string
	)
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Grant a paid tier to a member without billing",
		Long:  "Grant a paid tier to a member. Without --expires the grant never lapses.",
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := parseExpiry(expires)
			if err != nil {
				return err
			}

			db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			st, err := store.New(db)
			if err != nil {
				return err
			}

			m, err := grantTier(cmd.Context(), st, memberID, models.Tier(strings.ToLower(tier)), exp, time.Now().UTC())
			if err != nil {
				return err
			}
			newLogger().WithFields(map[string]interface{}{
				"member_id": m.ID,
				"tier":      m.Tier,
				"expires":   m.SubscriptionExpiresAt,
			}).Info("tier granted")
			return nil
		},
	}
	cmd.Flags().StringVar(&memberID, "member", "", "Member id")
	cmd.Flags().StringVar(&tier, "tier", string(models.TierPremium), "Tier to grant (basic or premium)")
	cmd.Flags().StringVar(&expires, "expires", "", "Optional RFC3339 expiry")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}

func newRevokeCmd() *cobra.Command {
	var memberID string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Return a member to the free tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			st, err := store.New(db)
			if err != nil {
				return err
			}

			m, err := revokeTier(cmd.Context(), st, memberID)
			if err != nil {
				return err
			}
			newLogger().With("member_id", m.ID).Info("tier revoked")
			return nil
		},
	}
	cmd.Flags().StringVar(&memberID, "member", "", "Member id")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}

func newShowCmd() *cobra.Command {
	var memberID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a member's subscription and current entitlements",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			st, err := store.New(db)
			if err != nil {
				return err
			}

			m, err := st.GetMember(cmd.Context(), memberID)
			if err != nil {
				return err
			}

			ev := entitlement.New(newCatalog(), st, newLogger())
			decisions, err := ev.EvaluateAll(cmd.Context(), models.MemberIdentity(m), entitlement.NoDemo)
			if err != nil {
				return err
			}
			printMember(cmd.OutOrStdout(), m, decisions, time.Now().UTC())
			return nil
		},
	}
	cmd.Flags().StringVar(&memberID, "member", "", "Member id")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}
