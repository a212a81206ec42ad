package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/genricoloni/screend/internal/config"
	"github.com/genricoloni/screend/internal/control"
	"github.com/genricoloni/screend/internal/domain"
	"github.com/genricoloni/screend/internal/pairing"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const dialTimeout = 5 * time.Second

// controlAddr resolves the --addr flag, falling back to the configuration
func controlAddr(cmd *cobra.Command) (string, error) {
	if addr := lo.Must(cmd.Flags().GetString("addr")); addr != "" {
		return addr, nil
	}
	v, err := config.NewViper(config.NewFs())
	if err != nil {
		return "", err
	}
	return v.GetString(config.KeyControlAddr), nil
}

// withClient connects to the running player and calls fn
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *control.Client) error) error {
	addr, err := controlAddr(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	client, err := control.Dial(dialCtx, addr)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	return fn(ctx, client)
}

func newPairCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pair <code>",
		Short: "Pair the player with a one-time code shown in the management app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := pairing.NormalizeCode(args[0])
			if err := pairing.ValidateCode(code); err != nil {
				return err
			}
			kioskMode := lo.Must(cmd.Flags().GetBool("kiosk"))
			password := lo.Must(cmd.Flags().GetString("exit-password"))
			if password != "" && !kioskMode {
				return errors.New("--exit-password requires --kiosk")
			}

			return withClient(cmd, func(ctx context.Context, c *control.Client) error {
				if err := c.Pair(ctx, code, kioskMode, password); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Paired")
				return nil
			})
		},
	}
	cmd.Flags().Bool("kiosk", false, "lock the display in kiosk mode")
	cmd.Flags().String("exit-password", "", "password required to leave kiosk mode")
	return cmd
}

func newDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Unpair the player and erase its local state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *control.Client) error {
				if err := c.Disconnect(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Disconnected")
				return nil
			})
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of the running player",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *control.Client) error {
				status, err := c.Status(ctx)
				if err != nil {
					return err
				}
				return printStatus(cmd.OutOrStdout(), status)
			})
		},
	}
}

func printStatus(out io.Writer, s control.Status) error {
	tw := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Version:\t%s\n", s.Version)
	if !s.Paired {
		fmt.Fprintf(tw, "Paired:\tno\n")
		return tw.Flush()
	}
	fmt.Fprintf(tw, "Paired:\tyes\n")
	fmt.Fprintf(tw, "Screen:\t%s\n", s.ScreenID)
	fmt.Fprintf(tw, "Content:\t%s\n", describeContent(s.Content))
	fmt.Fprintf(tw, "Sync:\t%s\n", lo.Ternary(s.Sync == "", "-", string(s.Sync)))
	fmt.Fprintf(tw, "Kiosk:\t%s\n", s.Kiosk)
	if !s.LastActivity.IsZero() {
		fmt.Fprintf(tw, "Last activity:\t%s\n", humanize.Time(s.LastActivity))
	}
	return tw.Flush()
}

func describeContent(fp domain.Fingerprint) string {
	if fp.IsZero() {
		return "none"
	}
	id := lo.CoalesceOrEmpty(fp.PlaylistID, fp.LayoutID, fp.CampaignID)
	if fp.Source != "" && fp.Source != string(fp.Type) {
		return fmt.Sprintf("%s %s (via %s)", fp.Type, id, fp.Source)
	}
	return fmt.Sprintf("%s %s", fp.Type, id)
}

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the offline cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "size",
			Short: "Print the size of the offline cache",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, func(ctx context.Context, c *control.Client) error {
					size, err := c.CacheSize(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), humanize.IBytes(uint64(size)))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Empty the offline cache",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, func(ctx context.Context, c *control.Client) error {
					if err := c.ClearCache(ctx); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "prefetch <url>...",
			Short: "Download media into the offline cache",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, func(ctx context.Context, c *control.Client) error {
					accepted, err := c.Prefetch(ctx, args)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Queued %d of %d\n", accepted, len(args))
					return nil
				})
			},
		},
	)
	return cmd
}

func newKioskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kiosk",
		Short: "Leave kiosk mode",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "exit",
			Short: "Confirm the kiosk exit with the exit password",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				password, err := readPassword(cmd, "Exit password: ")
				if err != nil {
					return err
				}
				return withClient(cmd, func(ctx context.Context, c *control.Client) error {
					if err := c.KioskExit(ctx, password); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Kiosk mode disabled")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "cancel",
			Short: "Close the exit prompt and keep kiosk mode",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, func(ctx context.Context, c *control.Client) error {
					return c.KioskCancel(ctx)
				})
			},
		},
	)
	return cmd
}

// readPassword prompts without echo on a terminal and reads one line otherwise
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		return string(b), err
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
