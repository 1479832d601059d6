package main

import (
	"log"

	"github.com/medmatch/trial-matcher/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
