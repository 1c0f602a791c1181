package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/Machina/internal/wire"
)

// NewMethodCmd создаёт группу команд для вызова методов.
func NewMethodCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "method",
		Short: "Invoke machine methods",
	}

	cmd.AddCommand(newMethodInvokeCmd(clientFn, outputFn))

	return cmd
}

func newMethodInvokeCmd(clientFn func() (*Client, error), outputFn func() *Output) *cobra.Command {
	var kwargs []string

	cmd := &cobra.Command{
		Use:   "invoke MACHINE NODE [ARG...]",
		Short: "Invoke a method",
		Long: "Invoke a method on a machine. A composite method answers STARTED with\n" +
			"@context_id while it is still running; COMPLETED arrives separately.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn()
			if err != nil {
				return err
			}
			defer client.Close()
			out := outputFn()

			payload := wire.Payload{Method: &wire.MethodPayload{Node: args[1]}}
			for _, arg := range args[2:] {
				payload.Method.Args = append(payload.Method.Args, parseValue(arg))
			}
			if len(kwargs) > 0 {
				payload.Method.Kwargs = make(map[string]any)
				for _, kv := range kwargs {
					parts := strings.SplitN(kv, "=", 2)
					if len(parts) != 2 {
						return fmt.Errorf("invalid kwarg format %q, expected KEY=VALUE", kv)
					}
					payload.Method.Kwargs[parts[0]] = parseValue(parts[1])
				}
			}

			resp, err := client.Request(cmd.Context(), args[0], wire.NamespaceMethod, wire.MethodInvoke, payload)
			if err != nil {
				return err
			}

			m := resp.Payload.Method
			rows := make([][]string, 0, len(m.Returns))
			for name, value := range m.Returns {
				rows = append(rows, []string{resp.Header.Name, name, formatValue(value)})
			}
			if len(rows) == 0 {
				rows = append(rows, []string{resp.Header.Name, "", ""})
			}

			out.Print([]string{"STATUS", "RETURN", "VALUE"}, rows, m)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&kwargs, "kwarg", nil, "Named argument as KEY=VALUE (repeatable)")

	return cmd
}
