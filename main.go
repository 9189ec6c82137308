package main

import (
	"log"

	"github.com/carebox/carebox/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
