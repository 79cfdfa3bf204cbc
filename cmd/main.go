package main

import (
	"go.uber.org/fx"

	"qualtrack/internal/service"
)

func main() {
	fx.New(service.Modules()).Run()
}
