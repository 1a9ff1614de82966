// Command fhectl is a command-line client for fhe-server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Hermetic-Labs/hermetic-fhe/pkg/client"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("✗")+" "+err.Error())
		os.Exit(1)
	}
}

// app carries what every subcommand needs.
type app struct {
	server  string
	timeout time.Duration
	quiet   bool

	client *client.Client
	out    io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "fhectl",
		Short:         "Generate keys, encrypt, evaluate and decrypt against an fhe-server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.client = client.New(a.server)
			a.out = cmd.OutOrStdout()
		},
	}

	server := os.Getenv("FHE_SERVER")
	if server == "" {
		server = "http://localhost:8080"
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&a.server, "server", "s", server, "fhe-server base URL (env FHE_SERVER)")
	pf.DurationVar(&a.timeout, "timeout", 10*time.Minute, "overall timeout per command")
	pf.BoolVarP(&a.quiet, "quiet", "q", false, "disable progress spinners")

	root.AddCommand(
		newKeygenCmd(a),
		newEncryptCmd(a),
		newEvalCmd(a),
		newDecryptCmd(a),
		newExportCmd(a),
		newStatsCmd(a),
		newDemoCmd(a),
	)
	return root
}

func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.timeout)
}

// step runs fn behind a spinner and reports success or failure on one line.
func (a *app) step(message string, fn func() error) error {
	if a.quiet {
		return fn()
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(a.out))
	s.Suffix = " " + message
	_ = s.Color("cyan")
	s.Start()

	err := fn()
	if err != nil {
		s.FinalMSG = color.RedString("✗") + " " + message + "\n"
	} else {
		s.FinalMSG = color.GreenString("✓") + " " + message + "\n"
	}
	s.Stop()
	return err
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *app) field(name, value string) {
	a.printf("  %-12s %s\n", name+":", color.CyanString(value))
}
