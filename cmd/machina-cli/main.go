// Machina CLI — инструмент командной строки для работы с машинами
// через RabbitMQ.
//
// Использование:
//
//	machina [--amqp-url URL] [--timeout D] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	variable  Чтение и запись переменных
//	method    Вызов методов
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Machina/internal/cli"
	"github.com/shaiso/Machina/internal/mq"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var amqpURL string
	var timeout time.Duration
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "machina",
		Short:         "Machina CLI — talk to machines over the message bus",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&amqpURL, "amqp-url", mq.DefaultURL(), "RabbitMQ URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Response timeout")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() (*cli.Client, error) { return cli.NewClient(amqpURL, timeout) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewVariableCmd(clientFn, outputFn),
		cli.NewMethodCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
