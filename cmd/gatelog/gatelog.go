package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/gatelog/gatelog/server"
	"github.com/joho/godotenv"
)

func main() {
	parser := argparse.NewParser("gatelog", "Site entry register for construction projects")
	configFilePath := parser.String("c", "config", &argparse.Options{Help: "Config file path", Default: ""})
	port := parser.String("p", "port", &argparse.Options{Help: "HTTP listen address", Default: ":8080"})
	hotReloadWWW := parser.Flag("", "hot", &argparse.Options{Help: "Hot reload www instead of embedding into binary", Default: false})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	// A .env file is the convenient way to carry secrets on a dev machine.
	// Missing file is fine.
	godotenv.Load()

	s, err := server.NewServer(*configFilePath, *hotReloadWWW)
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
	s.ListenForKillSignals()
	daemon.SdNotify(false, daemon.SdNotifyReady)
	if err := s.ListenHTTP(*port); err != nil {
		fmt.Printf("%v\n", err)
	}
}
