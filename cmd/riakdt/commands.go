package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"riakdt/common"
	"riakdt/crdt"
)

func handleOptions(cmd *cobra.Command) []crdt.HandleOption {
	if !cmd.Flags().Changed("namespace") {
		return nil
	}
	ns, _ := cmd.Flags().GetString("namespace")
	return []crdt.HandleOption{crdt.InNamespace(ns)}
}

func newCounterCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counter",
		Short: "Read and increment counters",
	}
	cmd.PersistentFlags().Bool("legacy", false, "use the bucket-level counter resource")
	cmd.PersistentFlags().String("namespace", "", "bucket type (default from config)")

	counter := func(cmd *cobra.Command, bucket, key string) (*crdt.Counter, error) {
		client, err := a.crdtClient()
		if err != nil {
			return nil, err
		}
		b := client.Bucket(bucket)
		if legacy, _ := cmd.Flags().GetBool("legacy"); legacy {
			return b.LegacyCounter(key), nil
		}
		return b.Counter(key, handleOptions(cmd)...), nil
	}

	get := &cobra.Command{
		Use:   "get BUCKET KEY",
		Short: "Print a counter's value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := counter(cmd, args[0], args[1])
			if err != nil {
				return err
			}
			v, err := c.Value(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add BUCKET KEY AMOUNT",
		Short: "Add a non-zero amount to a counter",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := counter(cmd, args[0], args[1])
			if err != nil {
				return err
			}
			return c.AddValue(args[2]).Save(cmd.Context())
		},
	}

	cmd.AddCommand(get, add)
	return cmd
}

func newSetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Read and update sets",
	}
	cmd.PersistentFlags().String("namespace", "", "bucket type (default from config)")

	set := func(cmd *cobra.Command, bucket, key string) (*crdt.Set, error) {
		client, err := a.crdtClient()
		if err != nil {
			return nil, err
		}
		return client.Bucket(bucket).Set(key, handleOptions(cmd)...), nil
	}

	get := &cobra.Command{
		Use:   "get BUCKET KEY",
		Short: "Print a set's elements",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := set(cmd, args[0], args[1])
			if err != nil {
				return err
			}
			elements, err := s.Value(cmd.Context())
			if err != nil {
				return err
			}
			if elements == nil {
				elements = []string{}
			}
			return printJSON(cmd.OutOrStdout(), elements)
		},
	}

	add := &cobra.Command{
		Use:   "add BUCKET KEY ELEMENT...",
		Short: "Add elements to a set",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := set(cmd, args[0], args[1])
			if err != nil {
				return err
			}
			return s.Add(args[2:]...).Save(cmd.Context())
		},
	}

	remove := &cobra.Command{
		Use:   "remove BUCKET KEY ELEMENT...",
		Short: "Remove elements from a set",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := set(cmd, args[0], args[1])
			if err != nil {
				return err
			}
			return s.Remove(args[2:]...).Save(cmd.Context())
		},
	}

	cmd.AddCommand(get, add, remove)
	return cmd
}

func newMapCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Read and update maps",
	}
	cmd.PersistentFlags().String("namespace", "", "bucket type (default from config)")

	mapHandle := func(cmd *cobra.Command, bucket, key string) (*crdt.Map, error) {
		client, err := a.crdtClient()
		if err != nil {
			return nil, err
		}
		return client.Bucket(bucket).Map(key, handleOptions(cmd)...), nil
	}

	get := &cobra.Command{
		Use:   "get BUCKET KEY",
		Short: "Print a map as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := mapHandle(cmd, args[0], args[1])
			if err != nil {
				return err
			}
			values, err := m.Fetch(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), values)
		},
	}

	put := &cobra.Command{
		Use:   "put BUCKET KEY JSON",
		Short: "Merge a JSON object into a map",
		Long: `Merge a JSON object into a map. Booleans become flags, numbers and
strings become registers, arrays become sets and objects become nested maps.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			obj, err := decodeObject(args[2])
			if err != nil {
				return err
			}
			m, err := mapHandle(cmd, args[0], args[1])
			if err != nil {
				return err
			}
			return m.DefineMapByObject(obj).Save(cmd.Context())
		},
	}

	remove := &cobra.Command{
		Use:   "remove BUCKET KEY FIELD KIND",
		Short: "Remove a field of the given kind from a map",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := common.ParseKind(args[3])
			if !ok {
				return errors.Errorf("unknown kind %q", args[3])
			}
			m, err := mapHandle(cmd, args[0], args[1])
			if err != nil {
				return err
			}
			return m.RemoveField(args[2], kind).Save(cmd.Context())
		},
	}

	cmd.AddCommand(get, put, remove)
	return cmd
}

func decodeObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, errors.Wrap(err, "map put: invalid JSON object")
	}
	if obj == nil {
		return nil, errors.New("map put: expected a JSON object")
	}
	return obj, nil
}

func newPingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the store answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.crdtClient(); err != nil {
				return err
			}
			if err := a.stack.Ping(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
}
