package main

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Hermetic-Labs/hermetic-fhe/pkg/client"
)

func newKeygenCmd(a *app) *cobra.Command {
	var params string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a client/server key pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			var keys client.Keys
			err := a.step("Generating "+strings.ToUpper(params)+" keys", func() (err error) {
				keys, err = a.client.GenerateKeys(ctx, params)
				return err
			})
			if err != nil {
				return err
			}
			a.field("client key", keys.ClientKeyID)
			a.field("server key", keys.ServerKeyID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&params, "params", "p", "DEFAULT", "parameter set (DEFAULT, FAST, SECURE)")
	return cmd
}

func newEncryptCmd(a *app) *cobra.Command {
	var (
		bits   uint32
		export bool
	)

	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a plaintext value",
	}

	printResult := func(cmd *cobra.Command, id string) error {
		a.field("ciphertext", id)
		if !export {
			return nil
		}
		ctx, cancel := a.context(cmd)
		defer cancel()
		data, err := a.client.Export(ctx, id)
		if err != nil {
			return err
		}
		a.field("serialized", base64.StdEncoding.EncodeToString(data))
		return nil
	}

	boolCmd := &cobra.Command{
		Use:   "bool <client-key> <true|false>",
		Short: "Encrypt a boolean",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("parse boolean %q: %w", args[1], err)
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			var id string
			err = a.step("Encrypting boolean", func() (err error) {
				id, err = a.client.EncryptBoolean(ctx, args[0], v)
				return err
			})
			if err != nil {
				return err
			}
			return printResult(cmd, id)
		},
	}

	intCmd := &cobra.Command{
		Use:   "int <client-key> <value>",
		Short: "Encrypt an unsigned integer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseInt(args[1], 0, 64)
			if err != nil {
				return fmt.Errorf("parse integer %q: %w", args[1], err)
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			var id string
			err = a.step(fmt.Sprintf("Encrypting %d-bit integer", bits), func() (err error) {
				id, err = a.client.EncryptInteger(ctx, args[0], v, bits)
				return err
			})
			if err != nil {
				return err
			}
			return printResult(cmd, id)
		},
	}
	intCmd.Flags().Uint32VarP(&bits, "bits", "b", 8, "integer width (4, 8, 16, 32, 64)")

	cmd.PersistentFlags().BoolVar(&export, "export", false, "also print the serialized ciphertext as base64")
	cmd.AddCommand(boolCmd, intCmd)
	return cmd
}

func newEvalCmd(a *app) *cobra.Command {
	var async bool

	cmd := &cobra.Command{
		Use:   "eval <server-key> <operation> <operand-id>...",
		Short: "Evaluate AND, OR, XOR, NOT, ADD, SUBTRACT, MULTIPLY, GREATER_THAN, LESS_THAN or EQUAL",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			sk, op, operands := args[0], strings.ToUpper(args[1]), args[2:]

			var id string
			if !async {
				err := a.step("Evaluating "+op, func() (err error) {
					id, err = a.client.Evaluate(ctx, sk, op, operands...)
					return err
				})
				if err != nil {
					return err
				}
				a.field("result", id)
				return nil
			}

			jobID, err := a.client.SubmitJob(ctx, sk, op, operands...)
			if err != nil {
				return err
			}
			a.field("job", jobID)

			var job *client.Job
			err = a.step("Waiting for "+op+" job", func() (err error) {
				job, err = a.client.WaitJob(ctx, jobID)
				return err
			})
			if err != nil {
				return err
			}
			if job.Status != "completed" {
				return fmt.Errorf("job %s %s: %s (%s)", job.ID, job.Status, job.Error, job.Code)
			}
			a.field("result", job.ResultID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "submit as a job and wait for it")
	return cmd
}

func newDecryptCmd(a *app) *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt a stored or serialized ciphertext",
	}

	source := func(args []string) (client.Source, error) {
		switch {
		case data != "" && len(args) > 1:
			return client.Source{}, fmt.Errorf("give either a ciphertext id or --data, not both")
		case data != "":
			raw, err := base64.StdEncoding.DecodeString(data)
			if err != nil {
				return client.Source{}, fmt.Errorf("decode --data: %w", err)
			}
			return client.Inline(raw), nil
		case len(args) > 1:
			return client.ByID(args[1]), nil
		default:
			return client.Source{}, fmt.Errorf("a ciphertext id or --data is required")
		}
	}

	boolCmd := &cobra.Command{
		Use:   "bool <client-key> [ciphertext-id]",
		Short: "Decrypt a boolean",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := source(args)
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			v, err := a.client.DecryptBoolean(ctx, args[0], src)
			if err != nil {
				return err
			}
			a.field("value", strconv.FormatBool(v))
			return nil
		},
	}

	intCmd := &cobra.Command{
		Use:   "int <client-key> [ciphertext-id]",
		Short: "Decrypt an integer",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := source(args)
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			v, err := a.client.DecryptInteger(ctx, args[0], src)
			if err != nil {
				return err
			}
			a.field("value", strconv.FormatInt(v, 10))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&data, "data", "", "base64 serialized ciphertext instead of an id")
	cmd.AddCommand(boolCmd, intCmd)
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <ciphertext-id>",
		Short: "Print a stored ciphertext as base64",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			data, err := a.client.Export(ctx, args[0])
			if err != nil {
				return err
			}
			a.printf("%s\n", base64.StdEncoding.EncodeToString(data))
			return nil
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show registry and evaluation statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			stats, err := a.client.Stats(ctx)
			if err != nil {
				return err
			}

			a.printf("%s\n", color.New(color.Bold).Sprint("Objects"))
			for _, kind := range []string{"client key", "server key", "boolean", "integer"} {
				a.field(kind, strconv.FormatInt(stats.Objects[kind], 10))
			}
			a.printf("%s\n", color.New(color.Bold).Sprint("Evaluations"))
			a.field("total", strconv.FormatInt(stats.Evaluations.TotalExecutions, 10))
			a.field("failed", strconv.FormatInt(stats.Evaluations.FailureCount, 10))
			if stats.Compute != nil {
				a.field("compute", fmt.Sprintf("%d/%d slots busy", stats.Compute.Busy, stats.Compute.Slots))
			}
			return nil
		},
	}
}
