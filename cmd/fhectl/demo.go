package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Hermetic-Labs/hermetic-fhe/pkg/client"
)

func newDemoCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run end-to-end demonstrations",
	}

	run := func(name string, fn func(context.Context) error) *cobra.Command {
		return &cobra.Command{
			Use:   name,
			Short: "Run the " + name + " demo",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := a.context(cmd)
				defer cancel()
				return fn(ctx)
			},
		}
	}

	all := run("all", func(ctx context.Context) error {
		for _, fn := range []func(context.Context) error{a.booleanDemo, a.integerDemo, a.paramsDemo} {
			if err := fn(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	all.Short = "Run every demo"

	cmd.AddCommand(
		run("boolean", a.booleanDemo),
		run("integer", a.integerDemo),
		run("params", a.paramsDemo),
		all,
	)
	return cmd
}

func (a *app) header(title string) {
	a.printf("\n%s\n", color.New(color.Bold, color.FgMagenta).Sprintf("===== %s =====", title))
}

func (a *app) verdict(ok bool, got, want any) error {
	if ok {
		a.printf("%s result matches expected output\n", color.GreenString("✓"))
		return nil
	}
	a.printf("%s result does not match expected output\n", color.RedString("✗"))
	return fmt.Errorf("got %v, want %v", got, want)
}

// booleanDemo evaluates (A AND B) OR (C AND NOT D) on encrypted bits.
func (a *app) booleanDemo(ctx context.Context) error {
	a.header("Boolean Circuit Evaluation")

	keys, err := a.client.GenerateKeys(ctx, "DEFAULT")
	if err != nil {
		return err
	}
	a.printf("Generated keys: client_key_id=%s, server_key_id=%s\n", keys.ClientKeyID, keys.ServerKeyID)

	inputs := []struct {
		name  string
		value bool
	}{{"A", true}, {"B", false}, {"C", true}, {"D", false}}
	ids := make([]string, len(inputs))
	for i, in := range inputs {
		if ids[i], err = a.client.EncryptBoolean(ctx, keys.ClientKeyID, in.value); err != nil {
			return err
		}
		a.printf("Encrypted %s = %t (id: %s)\n", in.name, in.value, ids[i])
	}

	steps := []struct {
		label string
		op    string
		args  func() []string
	}{
		{"NOT D", "NOT", func() []string { return []string{ids[3]} }},
		{"A AND B", "AND", func() []string { return []string{ids[0], ids[1]} }},
		{"C AND NOT D", "AND", func() []string { return []string{ids[2], ids[4]} }},
		{"(A AND B) OR (C AND NOT D)", "OR", func() []string { return []string{ids[5], ids[6]} }},
	}
	for _, s := range steps {
		var id string
		err := a.step("Computing "+s.label, func() (err error) {
			id, err = a.client.Evaluate(ctx, keys.ServerKeyID, s.op, s.args()...)
			return err
		})
		if err != nil {
			return err
		}
		ids = append(ids, id)
		a.printf("Computed %s (id: %s)\n", s.label, id)
	}

	got, err := a.client.DecryptBoolean(ctx, keys.ClientKeyID, client.ByID(ids[len(ids)-1]))
	if err != nil {
		return err
	}
	want := (inputs[0].value && inputs[1].value) || (inputs[2].value && !inputs[3].value)
	a.printf("Final result: (A AND B) OR (C AND NOT D) = %t\n", got)
	return a.verdict(got == want, got, want)
}

// integerDemo evaluates (A - B) * C on encrypted 8-bit integers.
func (a *app) integerDemo(ctx context.Context) error {
	a.header("Integer Arithmetic")

	keys, err := a.client.GenerateKeys(ctx, "DEFAULT")
	if err != nil {
		return err
	}
	a.printf("Generated keys: client_key_id=%s, server_key_id=%s\n", keys.ClientKeyID, keys.ServerKeyID)

	const x, y, z = 15, 7, 3
	var ids [3]string
	for i, v := range []int64{x, y, z} {
		if ids[i], err = a.client.EncryptInteger(ctx, keys.ClientKeyID, v, 8); err != nil {
			return err
		}
		a.printf("Encrypted %c = %d (id: %s)\n", 'A'+i, v, ids[i])
	}

	var diff, product string
	err = a.step("Computing (A - B) * C", func() (err error) {
		if diff, err = a.client.Evaluate(ctx, keys.ServerKeyID, "SUBTRACT", ids[0], ids[1]); err != nil {
			return err
		}
		product, err = a.client.Evaluate(ctx, keys.ServerKeyID, "MULTIPLY", diff, ids[2])
		return err
	})
	if err != nil {
		return err
	}
	a.printf("Computed A - B (id: %s)\nComputed (A - B) * C (id: %s)\n", diff, product)

	got, err := a.client.DecryptInteger(ctx, keys.ClientKeyID, client.ByID(product))
	if err != nil {
		return err
	}
	want := int64((x - y) * z)
	a.printf("Final result: (A - B) * C = (%d - %d) * %d = %d\n", x, y, z, got)
	return a.verdict(got == want, got, want)
}

// paramsDemo adds 42 and 27 under every parameter set.
func (a *app) paramsDemo(ctx context.Context) error {
	a.header("Parameter Sets Demo")

	const x, y = 42, 27
	for _, params := range []string{"DEFAULT", "FAST", "SECURE"} {
		a.printf("\nTesting %s parameter set:\n", params)

		var got int64
		err := a.step("Adding under "+params, func() error {
			keys, err := a.client.GenerateKeys(ctx, params)
			if err != nil {
				return err
			}
			xID, err := a.client.EncryptInteger(ctx, keys.ClientKeyID, x, 8)
			if err != nil {
				return err
			}
			yID, err := a.client.EncryptInteger(ctx, keys.ClientKeyID, y, 8)
			if err != nil {
				return err
			}
			sum, err := a.client.Evaluate(ctx, keys.ServerKeyID, "ADD", xID, yID)
			if err != nil {
				return err
			}
			got, err = a.client.DecryptInteger(ctx, keys.ClientKeyID, client.ByID(sum))
			return err
		})
		if err != nil {
			return err
		}

		a.printf("Using %s parameter set: %d + %d = %d\n", params, x, y, got)
		if err := a.verdict(got == x+y, got, x+y); err != nil {
			return fmt.Errorf("%s: %w", params, err)
		}
	}
	return nil
}
