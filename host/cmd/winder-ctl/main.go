package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"cablewinder/host/client"
	"cablewinder/host/serial"
)

var (
	device  string
	baud    int
	timeout time.Duration
	verbose bool
)

func main() {
	root := &cobra.Command{
		Use:           "winder-ctl",
		Short:         "Operate a cable winder over its serial console",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&device, "device", "d", "/dev/ttyACM0", "Serial device path")
	root.PersistentFlags().IntVarP(&baud, "baud", "b", 115200, "Baud rate (ignored for USB CDC)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "Reply timeout")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	root.AddCommand(portsCmd(), sendCmd(), shellCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

func connect() (*client.Client, error) {
	return client.Connect(device, baud, newLogger())
}

func portsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := serial.ListPorts()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				fmt.Println("No serial ports found")
				return nil
			}
			for _, p := range ports {
				if p.IsUSB {
					fmt.Printf("%-20s USB %s:%s %s %s\n", p.Name, p.VID, p.PID, p.SerialNumber, p.Product)
				} else {
					fmt.Println(p.Name)
				}
			}
			return nil
		},
	}
}

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <command> [args...]",
		Short: "Send one console command, e.g. status or width 60",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect()
			if err != nil {
				return err
			}
			defer c.Close()

			reply, err := c.Send(strings.Join(args, " "), timeout)
			for _, line := range reply {
				fmt.Println(line)
			}
			return err
		},
	}
}

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect()
			if err != nil {
				return err
			}
			defer c.Close()

			fmt.Printf("Connected to %s. Type 'help' for commands, 'quit' to exit.\n", device)
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				switch line {
				case "":
					continue
				case "quit", "exit", "q":
					return nil
				}

				reply, err := c.Send(line, timeout)
				for _, l := range reply {
					fmt.Println(l)
				}
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				}
			}
			return scanner.Err()
		},
	}
}
