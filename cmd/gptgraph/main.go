// Package main provides the gptgraph CLI: train a small transformer language
// model on a text file and sample from it.
//
// Usage:
//
//	gptgraph train -data dataset.txt -checkpoint train_data
//	gptgraph generate -checkpoint train_data -prompt "Once upon" -count 200
//	gptgraph params -vocab 65 -layers 4
//	gptgraph version
package main

import (
	"flag"
	"fmt"
	"os"

	"k8s.io/klog/v2"
)

const version = "v0.1.0"

type command struct {
	name  string
	usage string
	run   func(args []string) error
}

var commands = []command{
	{"train", "Train a model on a text file, resuming from its checkpoint", runTrain},
	{"generate", "Generate text from a trained checkpoint", runGenerate},
	{"params", "Print the parameter count of a model configuration", runParams},
	{"version", "Show version", runVersion},
}

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	for _, cmd := range commands {
		if cmd.name != os.Args[1] {
			continue
		}
		if err := cmd.run(os.Args[2:]); err != nil {
			klog.Flush()
			fmt.Fprintf(os.Stderr, "%s: %v\n", cmd.name, err)
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
	usage()
	os.Exit(2)
}

func usage() {
	fmt.Println("gptgraph - decoder-only transformer training and sampling")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	for _, cmd := range commands {
		fmt.Printf("  %-10s %s\n", cmd.name, cmd.usage)
	}
	fmt.Println("\nRun 'gptgraph <command> -h' for command flags.")
}

func runVersion([]string) error {
	fmt.Printf("gptgraph %s\n", version)
	return nil
}

// newFlagSet returns a flag set that also carries the klog flags, so
// -v and -logtostderr work after the subcommand name.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	flag.CommandLine.VisitAll(func(f *flag.Flag) {
		fs.Var(f.Value, f.Name, f.Usage)
	})
	return fs
}
