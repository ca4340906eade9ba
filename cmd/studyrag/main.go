// Package main is the entry point for the study assistant.
package main

import (
	"github.com/kart-io/studyrag/cmd/studyrag/app"
)

func main() {
	app.NewApp().Run()
}
