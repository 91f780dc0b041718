package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Zereker/transmission"
)

var (
	rootCmd = &cobra.Command{
		Use:   "echo",
		Short: "length-prefixed echo over transmission",
		Long: `Echo server and client exchanging length-prefixed frames.

Flags can also be set through environment variables named
TRANSMISSION_<FLAG>, e.g. TRANSMISSION_ADDR=127.0.0.1:9000.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Echo every received frame back to its sender",
		RunE:  runServe,
	}
	sendCmd = &cobra.Command{
		Use:   "send MESSAGE...",
		Short: "Send each argument as a frame and print the replies",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSend,
	}
)

func init() {
	rootCmd.PersistentFlags().String("addr", "127.0.0.1:12345", "address to listen on or dial")
	rootCmd.PersistentFlags().Int("prefix-bits", transmission.Prefix32, "width of the frame length prefix (8, 16, 32, 64)")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "read and write timeout, 0 disables")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sendCmd)
}

// initConfig binds the flags to viper and installs the global zap logger.
func initConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	viper.SetEnvPrefix("transmission")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	level, err := zapcore.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)
	return nil
}

func connOptions() []transmission.Option {
	timeout := viper.GetDuration("timeout")
	return []transmission.Option{
		transmission.LoggerOption(transmission.NewZapLogger(zap.L())),
		transmission.ReadTimeoutOption(timeout),
		transmission.WriteTimeoutOption(timeout),
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	addr, err := net.ResolveTCPAddr("tcp", viper.GetString("addr"))
	if err != nil {
		return err
	}
	prefixBits := viper.GetInt("prefix-bits")

	server, err := transmission.New(addr,
		transmission.ServerLoggerOption(transmission.NewZapLogger(zap.L())),
		transmission.ServerConnOptions(connOptions()...),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zap.L().Info("serving", zap.String("addr", server.Addr().String()), zap.Int("prefix_bits", prefixBits))

	err = server.Serve(ctx, transmission.HandlerFunc(func(ctx context.Context, conn *transmission.Conn) error {
		for {
			frame, err := conn.ReadWithLengthPrefix(prefixBits)
			if err != nil {
				if errors.Is(err, transmission.ErrExhausted) {
					return nil
				}
				return err
			}
			zap.L().Debug("echo", zap.Int("conn", conn.ID()), zap.Int("len", len(frame)))
			if err := conn.WriteWithLengthPrefix(frame, prefixBits); err != nil {
				return err
			}
		}
	}))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runSend(_ *cobra.Command, args []string) error {
	prefixBits := viper.GetInt("prefix-bits")

	raw, err := net.DialTimeout("tcp", viper.GetString("addr"), viper.GetDuration("timeout"))
	if err != nil {
		return err
	}

	conn, err := transmission.NewConn(1, transmission.NewStreamTransport(raw), connOptions()...)
	if err != nil {
		_ = raw.Close()
		return err
	}
	defer conn.Close()

	for _, msg := range args {
		if err := conn.WriteWithLengthPrefix([]byte(msg), prefixBits); err != nil {
			return err
		}
		reply, err := conn.ReadWithLengthPrefix(prefixBits)
		if err != nil {
			return err
		}
		fmt.Println(string(reply))
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
