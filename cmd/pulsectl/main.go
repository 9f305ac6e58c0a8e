package main

import (
	"log"

	"github.com/pulsehook/pulsehook/cmd/pulsectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
