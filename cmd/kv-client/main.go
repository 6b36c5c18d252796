package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/anthanhphan/go-kvs/pkg/client"
)

const usage = `Usage:
  kv-client get <key>            [-addr host:port]
  kv-client set <key> <value>    [-addr host:port]
  kv-client rm <key>             [-addr host:port]
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	flags := flag.NewFlagSet(command, flag.ExitOnError)
	addr := flags.String("addr", "127.0.0.1:4000", "Server address")

	var key, value string
	switch command {
	case "get", "rm":
		if len(os.Args) < 3 {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		key = os.Args[2]
		_ = flags.Parse(os.Args[3:])
	case "set":
		if len(os.Args) < 4 {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		key, value = os.Args[2], os.Args[3]
		_ = flags.Parse(os.Args[4:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	c, err := client.Dial(*addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	switch command {
	case "get":
		v, found, err := c.Get(key)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if !found {
			fmt.Println("Key not found")
			return
		}
		fmt.Println(v)
	case "set":
		if err := c.Set(key, value); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "rm":
		if err := c.Remove(key); err != nil {
			if errors.Is(err, client.ErrKeyNotFound) {
				fmt.Fprintln(os.Stderr, "Key not found")
			} else {
				fmt.Fprintln(os.Stderr, err)
			}
			os.Exit(1)
		}
	}
}
