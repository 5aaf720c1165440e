// Package main is the entry point for the answer cache service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/answercache/internal/answercache"
)

func main() {
	answercache.NewApp().Run()
}
