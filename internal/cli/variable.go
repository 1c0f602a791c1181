package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/Machina/internal/wire"
)

// NewVariableCmd создаёт группу команд для работы с переменными.
func NewVariableCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "variable",
		Aliases: []string{"var"},
		Short:   "Read and write machine variables",
	}

	cmd.AddCommand(
		newVariableReadCmd(clientFn, outputFn),
		newVariableWriteCmd(clientFn, outputFn),
	)

	return cmd
}

func newVariableReadCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "read MACHINE NODE",
		Short: "Read a variable value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn()
			if err != nil {
				return err
			}
			defer client.Close()
			out := outputFn()

			payload := wire.Payload{Variable: &wire.VariablePayload{Node: args[1]}}
			resp, err := client.Request(cmd.Context(), args[0], wire.NamespaceVariable, wire.VariableRead, payload)
			if err != nil {
				return err
			}

			v := resp.Payload.Variable
			out.Print(
				[]string{"MACHINE", "NODE", "VALUE"},
				[][]string{{args[0], v.Node, formatValue(v.Value)}},
				v,
			)
			return nil
		},
	}
}

func newVariableWriteCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "write MACHINE NODE VALUE",
		Short: "Write a variable value",
		Long:  "Write a variable value. VALUE is parsed as JSON; unparsable input is sent as a string.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn()
			if err != nil {
				return err
			}
			defer client.Close()
			out := outputFn()

			payload := wire.Payload{Variable: &wire.VariablePayload{
				Node:  args[1],
				Value: parseValue(args[2]),
			}}
			_, err = client.Request(cmd.Context(), args[0], wire.NamespaceVariable, wire.VariableWrite, payload)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Written: %s on %s", args[1], args[0]))
			return nil
		},
	}
}

// parseValue разбирает значение из аргумента командной строки.
// Значение трактуется как JSON; нечитаемый ввод уходит строкой.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

// formatValue выводит значение для табличного режима.
func formatValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
