//go:build unix

// Package main provides the CLI entry point for the dgram datagram tool.
package main

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/postalsys/dgram/internal/poll"
	"github.com/postalsys/dgram/internal/probe"
	"github.com/postalsys/dgram/internal/sysinfo"
	"github.com/postalsys/dgram/internal/udp"
)

func main() {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:   "dgram",
		Short: "dgram - non-blocking UDP endpoints from the command line",
		Long: `dgram opens UDP associations and listening endpoints, including
IPv4 multicast groups, and drives them with a readiness loop.

Sends report one of SENT, RESOURCE_NOT_FOUND, WOULD_BLOCK or
MAX_PACKET_SIZE_EXCEEDED, exactly as the adapter classifies them.`,
		Version:      sysinfo.Version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "Log format: text, json")
	rootCmd.PersistentFlags().StringVar(&flags.healthAddr, "health-addr", "", "Serve /health, /healthz and /metrics on this address")

	rootCmd.AddCommand(listenCmd(&flags))
	rootCmd.AddCommand(sendCmd(&flags))
	rootCmd.AddCommand(probeCmd(&flags))
	rootCmd.AddCommand(limitsCmd())
	rootCmd.AddCommand(infoCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func listenCmd(flags *globalFlags) *cobra.Command {
	var echo bool

	cmd := &cobra.Command{
		Use:   "listen <address>",
		Short: "Listen for datagrams",
		Long: `Bind a listening endpoint and print every datagram received.
A multicast address (e.g. 239.1.1.1:5000) joins the group.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := netip.ParseAddrPort(args[0])
			if err != nil {
				return fmt.Errorf("invalid address %q: %w", args[0], err)
			}

			env, err := newRuntime(flags)
			if err != nil {
				return err
			}
			defer env.Close()

			l, err := env.adapter.Listen(addr)
			if err != nil {
				return fmt.Errorf("failed to listen: %w", err)
			}
			defer l.Close()

			if group, ok := l.Group(); ok {
				fmt.Printf("Listening on %s (multicast group %s)\n", l.LocalAddr(), group)
			} else {
				fmt.Printf("Listening on %s\n", l.LocalAddr())
			}

			out := cmd.OutOrStdout()
			tok, err := env.poller.Register(l, func() {
				l.Accept(func(from netip.AddrPort, data []byte) {
					env.stats.received.Add(1)
					fmt.Fprintf(out, "%s %s %q\n", from, humanize.Bytes(uint64(len(data))), data)

					if echo {
						env.recordSend(l.SendTo(from, data))
					}
				})
			})
			if err != nil {
				return err
			}
			defer env.poller.Deregister(tok)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return env.run(ctx)
		},
	}

	cmd.Flags().BoolVarP(&echo, "echo", "e", false, "Send every datagram back to its sender")

	return cmd
}

func sendCmd(flags *globalFlags) *cobra.Command {
	var (
		count int
		pps   float64
		size  int
		wait  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send <address> <message>",
		Short: "Send datagrams to a peer",
		Long: `Associate with a peer, send a message, and print the replies
received within the wait period.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, err := netip.ParseAddrPort(args[0])
			if err != nil {
				return fmt.Errorf("invalid address %q: %w", args[0], err)
			}

			env, err := newRuntime(flags)
			if err != nil {
				return err
			}
			defer env.Close()

			// Flags override the configuration file.
			opts := env.cfg.Send
			if cmd.Flags().Changed("count") {
				opts.Count = count
			}
			if cmd.Flags().Changed("rate") {
				opts.Rate = pps
			}
			if cmd.Flags().Changed("size") {
				opts.Size = size
			}
			if cmd.Flags().Changed("wait") {
				opts.Wait = wait
			}
			if opts.Count < 1 {
				return fmt.Errorf("count must be positive")
			}

			r, err := env.adapter.Connect(peer)
			if err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			defer r.Close()

			fmt.Printf("Associated %s -> %s\n", r.LocalAddr(), r.PeerAddr())

			out := cmd.OutOrStdout()
			tok, err := env.poller.Register(r, func() {
				r.Receive(func(data []byte) {
					env.stats.received.Add(1)
					fmt.Fprintf(out, "reply %s %q\n", humanize.Bytes(uint64(len(data))), data)
				})
			})
			if err != nil {
				return err
			}
			defer env.poller.Deregister(tok)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var limiter *rate.Limiter
			if opts.Rate > 0 {
				limiter = rate.NewLimiter(rate.Limit(opts.Rate), 1)
			}

			data := buildPayload(args[1], opts.Size)
			for i := 1; i <= opts.Count; i++ {
				if limiter != nil {
					if err := limiter.Wait(ctx); err != nil {
						return nil
					}
				}

				res, err := sendWhenWritable(ctx, r, data)
				if err != nil {
					return err
				}
				env.recordSend(res)
				fmt.Fprintf(out, "#%d %s\n", i, describe(res))

				// Pick up replies between sends.
				if _, err := env.poller.Poll(0); err != nil {
					return err
				}
			}

			waitCtx, cancel := context.WithTimeout(ctx, opts.Wait)
			defer cancel()
			return env.run(waitCtx)
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of datagrams to send")
	cmd.Flags().Float64VarP(&pps, "rate", "r", 0, "Datagrams per second (0 = unlimited)")
	cmd.Flags().IntVarP(&size, "size", "s", 0, "Pad the payload with zeros to this size")
	cmd.Flags().DurationVarP(&wait, "wait", "w", time.Second, "How long to wait for replies")

	return cmd
}

func probeCmd(flags *globalFlags) *cobra.Command {
	var opts probe.Options

	cmd := &cobra.Command{
		Use:   "probe <address>",
		Short: "Measure round trips to an echo peer",
		Long: `Send numbered datagrams to a peer running "dgram listen --echo"
and report the round trip of each echo.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := netip.ParseAddrPort(args[0])
			if err != nil {
				return fmt.Errorf("invalid address %q: %w", args[0], err)
			}
			opts.Address = addr

			env, err := newRuntime(flags)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result := probe.Probe(ctx, env.adapter, env.logger, opts)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Probe %s: %d sent, %d received, %.0f%% loss\n",
				result.Address, result.Sent, result.Received, result.Loss()*100)
			for i, rtt := range result.RTTs {
				fmt.Fprintf(out, "  #%d rtt=%s\n", i+1, rtt)
			}
			if !result.Success {
				return fmt.Errorf("probe failed: %s", result.ErrorDetail)
			}
			fmt.Fprintf(out, "Average RTT: %s\n", result.RTT())
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.Count, "count", "n", 4, "Number of probes")
	cmd.Flags().IntVarP(&opts.Size, "size", "s", 0, "Pad each probe to this size")
	cmd.Flags().DurationVarP(&opts.Timeout, "timeout", "t", time.Second, "Wait for each echo")

	return cmd
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show host information for UDP endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := sysinfo.Collect()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Version:   %s\n", info.Version)
			fmt.Fprintf(out, "Hostname:  %s\n", info.Hostname)
			fmt.Fprintf(out, "Platform:  %s/%s\n", info.OS, info.Arch)
			fmt.Fprintf(out, "Started:   %s\n", humanize.Time(info.StartTime))
			fmt.Fprintf(out, "Addresses: %s\n", joinOrNone(info.IPAddresses))
			fmt.Fprintf(out, "Multicast: %s\n", joinOrNone(info.MulticastInterfaces))
			return nil
		},
	}
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

func limitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "limits",
		Short: "Show datagram payload limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Max payload:            %d bytes (%s)\n",
				udp.MaxPayloadLen, humanize.IBytes(udp.MaxPayloadLen))
			fmt.Fprintf(out, "Max compatible payload: %d bytes (%s)\n",
				udp.MaxCompatiblePayloadLen, humanize.IBytes(udp.MaxCompatiblePayloadLen))
			fmt.Fprintln(out, "Stay under the compatible payload for portable behavior.")
			return nil
		},
	}
}

// sendWhenWritable sends data, waiting for writability while the socket
// reports would-block.
func sendWhenWritable(ctx context.Context, r *udp.Remote, data []byte) (udp.SendResult, error) {
	for {
		res := r.Send(data)
		if res.Status != udp.WouldBlock {
			return res, nil
		}
		if err := ctx.Err(); err != nil {
			return res, nil
		}
		if _, err := poll.WaitWritable(r, 100*time.Millisecond); err != nil {
			return res, err
		}
	}
}

// buildPayload returns message padded with zeros to size bytes.
func buildPayload(message string, size int) []byte {
	if size <= len(message) {
		return []byte(message)
	}
	data := make([]byte, size)
	copy(data, message)
	return data
}

// describe formats a send result for humans.
func describe(res udp.SendResult) string {
	switch res.Status {
	case udp.MaxPacketSizeExceeded:
		return fmt.Sprintf("%s: %s payload exceeds the %s limit",
			res.Status, humanize.IBytes(uint64(res.Size)), humanize.IBytes(uint64(res.Limit)))
	case udp.Sent:
		return fmt.Sprintf("%s %s", res.Status, humanize.IBytes(uint64(res.Size)))
	default:
		return res.Status.String()
	}
}
